package inspectcmder

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/spool/pkg/dotdir"
	"github.com/papercomputeco/spool/pkg/merkle"
	"github.com/papercomputeco/spool/pkg/store"
	"github.com/papercomputeco/spool/pkg/wal/file"
	"github.com/papercomputeco/spool/pkg/wal/inmemory"
)

var _ = Describe("nodeMarkdown", func() {
	var (
		st     *store.Store
		parent *merkle.Node
		child  *merkle.Node
		edge   *merkle.Edge
	)

	BeforeEach(func() {
		st = store.New(inmemory.New(), store.WithLogger(zap.NewNop()))
		ctx := context.Background()

		var err error
		parent, err = merkle.NewNode("source", nil, json.RawMessage(`{"seq":1}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(st.AddNode(ctx, parent)).To(Succeed())

		child, err = merkle.NewNode("derived", []uuid.UUID{parent.ID}, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(st.AddNode(ctx, child)).To(Succeed())

		edge, err = merkle.NewEdge([]uuid.UUID{parent.ID}, child.ID, "transform", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(st.AddEdge(ctx, edge)).To(Succeed())
	})

	AfterEach(func() {
		Expect(st.Close()).To(Succeed())
	})

	It("describes a node with a payload", func() {
		md := nodeMarkdown(st, parent)

		Expect(md).To(ContainSubstring("# source"))
		Expect(md).To(ContainSubstring("Node `" + parent.ID.String() + "`"))
		Expect(md).To(ContainSubstring(parent.Hash))
		Expect(md).To(ContainSubstring("```json"))
		Expect(md).To(ContainSubstring(`"seq": 1`))
	})

	It("lists the consuming edge on the input node", func() {
		md := nodeMarkdown(st, parent)

		Expect(md).To(ContainSubstring("## Consumed by"))
		Expect(md).To(ContainSubstring(edge.ID.String()))
		Expect(md).NotTo(ContainSubstring("## Produced by"))
	})

	It("lists parents and the producing edge on the output node", func() {
		md := nodeMarkdown(st, child)

		Expect(md).To(ContainSubstring("## Parents"))
		Expect(md).To(ContainSubstring(parent.ID.String()))
		Expect(md).To(ContainSubstring("source"))
		Expect(md).To(ContainSubstring("## Produced by"))
		Expect(md).To(ContainSubstring(edge.ID.String()))
	})

	It("marks a missing payload", func() {
		md := nodeMarkdown(st, child)
		Expect(md).To(ContainSubstring("_no payload_"))
	})
})

var _ = Describe("Inspect command execution", func() {
	var (
		tmpDir  string
		origDir string
		parent  *merkle.Node
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "spool-inspect-test-*")
		Expect(err).NotTo(HaveOccurred())

		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		err = os.MkdirAll(filepath.Join(tmpDir, ".spool"), 0o755)
		Expect(err).NotTo(HaveOccurred())

		err = os.Chdir(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		parent = seedGraph(filepath.Join(tmpDir, ".spool", "graph.wal"))
	})

	AfterEach(func() {
		err := os.Chdir(origDir)
		Expect(err).NotTo(HaveOccurred())
		os.RemoveAll(tmpDir)
	})

	It("renders a node by id", func() {
		var buf bytes.Buffer
		cmd := NewInspectCmd()
		cmd.SetOut(&buf)
		cmd.SetErr(&buf)
		cmd.SetArgs([]string{parent.ID.String()})

		err := cmd.Execute()
		Expect(err).NotTo(HaveOccurred())
		Expect(buf.String()).To(ContainSubstring(parent.ID.String()))
		Expect(buf.String()).To(ContainSubstring("source"))
	})

	It("pins a node with --pin", func() {
		var buf bytes.Buffer
		cmd := NewInspectCmd()
		cmd.SetOut(&buf)
		cmd.SetErr(&buf)
		cmd.SetArgs([]string{parent.ID.String(), "--pin"})

		err := cmd.Execute()
		Expect(err).NotTo(HaveOccurred())

		pin, err := dotdir.NewManager().LoadPinState("")
		Expect(err).NotTo(HaveOccurred())
		Expect(pin).NotTo(BeNil())
		Expect(pin.NodeID).To(Equal(parent.ID.String()))
		Expect(pin.Hash).To(Equal(parent.Hash))
	})

	It("inspects the pinned node with no argument", func() {
		pinCmd := NewInspectCmd()
		pinCmd.SetOut(&bytes.Buffer{})
		pinCmd.SetErr(&bytes.Buffer{})
		pinCmd.SetArgs([]string{parent.ID.String(), "--pin"})
		Expect(pinCmd.Execute()).To(Succeed())

		var buf bytes.Buffer
		cmd := NewInspectCmd()
		cmd.SetOut(&buf)
		cmd.SetErr(&buf)
		cmd.SetArgs([]string{})

		err := cmd.Execute()
		Expect(err).NotTo(HaveOccurred())
		Expect(buf.String()).To(ContainSubstring(parent.ID.String()))
	})

	It("clears the pin with --unpin", func() {
		pinCmd := NewInspectCmd()
		pinCmd.SetOut(&bytes.Buffer{})
		pinCmd.SetErr(&bytes.Buffer{})
		pinCmd.SetArgs([]string{parent.ID.String(), "--pin"})
		Expect(pinCmd.Execute()).To(Succeed())

		var buf bytes.Buffer
		cmd := NewInspectCmd()
		cmd.SetOut(&buf)
		cmd.SetErr(&buf)
		cmd.SetArgs([]string{"--unpin"})

		err := cmd.Execute()
		Expect(err).NotTo(HaveOccurred())
		Expect(buf.String()).To(ContainSubstring("pin cleared"))

		pin, err := dotdir.NewManager().LoadPinState("")
		Expect(err).NotTo(HaveOccurred())
		Expect(pin).To(BeNil())
	})

	It("errors with no argument and no pin", func() {
		cmd := NewInspectCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{})

		err := cmd.Execute()
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("no pin set"))
	})

	It("rejects --pin together with --unpin", func() {
		cmd := NewInspectCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{parent.ID.String(), "--pin", "--unpin"})

		err := cmd.Execute()
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("mutually exclusive"))
	})

	It("rejects a malformed id", func() {
		cmd := NewInspectCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"not-a-uuid"})

		err := cmd.Execute()
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("invalid node id"))
	})

	It("errors for an unknown node", func() {
		cmd := NewInspectCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{uuid.NewString()})

		err := cmd.Execute()
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("not found"))
	})
})

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
