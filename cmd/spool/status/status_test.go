package statuscmder_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	statuscmder "github.com/papercomputeco/spool/cmd/spool/status"
	"github.com/papercomputeco/spool/pkg/dotdir"
	"github.com/papercomputeco/spool/pkg/merkle"
	"github.com/papercomputeco/spool/pkg/store"
	"github.com/papercomputeco/spool/pkg/wal/file"
)

var _ = Describe("NewStatusCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := statuscmder.NewStatusCmd()
		Expect(cmd.Use).To(Equal("status"))
	})

	It("rejects any arguments", func() {
		cmd := statuscmder.NewStatusCmd()
		err := cmd.Args(cmd, []string{"extra"})
		Expect(err).To(HaveOccurred())
	})

	It("registers the storage flags", func() {
		cmd := statuscmder.NewStatusCmd()
		Expect(cmd.Flags().Lookup("driver")).NotTo(BeNil())
		Expect(cmd.Flags().Lookup("wal")).NotTo(BeNil())
		Expect(cmd.Flags().Lookup("sqlite")).NotTo(BeNil())
		Expect(cmd.Flags().Lookup("api-target")).NotTo(BeNil())
	})
})

var _ = Describe("Status command execution", func() {
	var (
		tmpDir  string
		origDir string
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "spool-status-test-*")
		Expect(err).NotTo(HaveOccurred())

		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		err = os.MkdirAll(filepath.Join(tmpDir, ".spool"), 0o755)
		Expect(err).NotTo(HaveOccurred())

		err = os.Chdir(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		err := os.Chdir(origDir)
		Expect(err).NotTo(HaveOccurred())
		os.RemoveAll(tmpDir)
	})

	It("runs against an empty log", func() {
		cmd := statuscmder.NewStatusCmd()
		cmd.SetArgs([]string{})
		err := cmd.Execute()
		Expect(err).NotTo(HaveOccurred())
	})

	It("runs against a populated log", func() {
		seedGraph(filepath.Join(tmpDir, ".spool", "graph.wal"))

		cmd := statuscmder.NewStatusCmd()
		cmd.SetArgs([]string{})
		err := cmd.Execute()
		Expect(err).NotTo(HaveOccurred())
	})

	It("runs with a pin set", func() {
		node := seedGraph(filepath.Join(tmpDir, ".spool", "graph.wal"))

		err := dotdir.NewManager().SavePin(&dotdir.PinState{
			NodeID:   node.ID.String(),
			Hash:     node.Hash,
			PinnedAt: time.Now().UTC(),
		}, "")
		Expect(err).NotTo(HaveOccurred())

		cmd := statuscmder.NewStatusCmd()
		cmd.SetArgs([]string{})
		err = cmd.Execute()
		Expect(err).NotTo(HaveOccurred())
	})

	It("pings a reachable API target without error", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" {
				w.WriteHeader(http.StatusOK)
				return
			}
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		cmd := statuscmder.NewStatusCmd()
		cmd.SetArgs([]string{"--api-target", server.URL})
		err := cmd.Execute()
		Expect(err).NotTo(HaveOccurred())
	})

	It("surfaces a replay failure", func() {
		// Append the same node twice so replay trips the duplicate check.
		path := filepath.Join(tmpDir, ".spool", "graph.wal")
		log, err := file.New(path, file.WithLogger(zap.NewNop()))
		Expect(err).NotTo(HaveOccurred())

		node, err := merkle.NewNode("source", nil, json.RawMessage(`{"k":1}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(log.AppendNode(context.Background(), node)).To(Succeed())
		Expect(log.AppendNode(context.Background(), node)).To(Succeed())
		Expect(log.Close()).To(Succeed())

		cmd := statuscmder.NewStatusCmd()
		cmd.SetArgs([]string{})
		err = cmd.Execute()
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("replaying log"))
	})
})

// seedGraph writes a small graph through the store so the status command has
// something to replay. Returns one of the nodes for pin tests.
func seedGraph(path string) *merkle.Node {
	log, err := file.New(path, file.WithLogger(zap.NewNop()))
	ExpectWithOffset(1, err).NotTo(HaveOccurred())

	st := store.New(log, store.WithLogger(zap.NewNop()))
	defer func() {
		ExpectWithOffset(1, st.Close()).To(Succeed())
	}()

	ctx := context.Background()

	parent, err := merkle.NewNode("source", nil, json.RawMessage(`{"seq":1}`))
	ExpectWithOffset(1, err).NotTo(HaveOccurred())
	ExpectWithOffset(1, st.AddNode(ctx, parent)).To(Succeed())

	child, err := merkle.NewNode("derived", []uuid.UUID{parent.ID}, json.RawMessage(`{"seq":2}`))
	ExpectWithOffset(1, err).NotTo(HaveOccurred())
	ExpectWithOffset(1, st.AddNode(ctx, child)).To(Succeed())

	edge, err := merkle.NewEdge([]uuid.UUID{parent.ID}, child.ID, "transform", nil)
	ExpectWithOffset(1, err).NotTo(HaveOccurred())
	ExpectWithOffset(1, st.AddEdge(ctx, edge)).To(Succeed())

	return parent
}
