package sortcmder_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	sortcmder "github.com/papercomputeco/spool/cmd/spool/sort"
	"github.com/papercomputeco/spool/pkg/merkle"
	"github.com/papercomputeco/spool/pkg/store"
	"github.com/papercomputeco/spool/pkg/wal/file"
)

var _ = Describe("NewSortCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := sortcmder.NewSortCmd()
		Expect(cmd.Use).To(Equal("sort"))
	})

	It("rejects any arguments", func() {
		cmd := sortcmder.NewSortCmd()
		err := cmd.Args(cmd, []string{"extra"})
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Sort command execution", func() {
	var (
		tmpDir  string
		origDir string
		walPath string
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "spool-sort-test-*")
		Expect(err).NotTo(HaveOccurred())

		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		err = os.MkdirAll(filepath.Join(tmpDir, ".spool"), 0o755)
		Expect(err).NotTo(HaveOccurred())

		err = os.Chdir(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		walPath = filepath.Join(tmpDir, ".spool", "graph.wal")
	})

	AfterEach(func() {
		err := os.Chdir(origDir)
		Expect(err).NotTo(HaveOccurred())
		os.RemoveAll(tmpDir)
	})

	It("reports an empty graph", func() {
		var buf bytes.Buffer
		cmd := sortcmder.NewSortCmd()
		cmd.SetOut(&buf)
		cmd.SetErr(&buf)
		cmd.SetArgs([]string{})

		err := cmd.Execute()
		Expect(err).NotTo(HaveOccurred())
		Expect(buf.String()).To(ContainSubstring("graph is empty"))
	})

	It("prints parents before children", func() {
		log, err := file.New(walPath, file.WithLogger(zap.NewNop()))
		Expect(err).NotTo(HaveOccurred())

		st := store.New(log, store.WithLogger(zap.NewNop()))
		ctx := context.Background()

		parent, err := merkle.NewNode("source", nil, json.RawMessage(`{"seq":1}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(st.AddNode(ctx, parent)).To(Succeed())

		middle, err := merkle.NewNode("derived", []uuid.UUID{parent.ID}, json.RawMessage(`{"seq":2}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(st.AddNode(ctx, middle)).To(Succeed())

		leaf, err := merkle.NewNode("derived", []uuid.UUID{middle.ID}, json.RawMessage(`{"seq":3}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(st.AddNode(ctx, leaf)).To(Succeed())

		edge, err := merkle.NewEdge([]uuid.UUID{parent.ID}, middle.ID, "transform", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(st.AddEdge(ctx, edge)).To(Succeed())

		Expect(st.Close()).To(Succeed())

		var buf bytes.Buffer
		cmd := sortcmder.NewSortCmd()
		cmd.SetOut(&buf)
		cmd.SetErr(&buf)
		cmd.SetArgs([]string{})

		err = cmd.Execute()
		Expect(err).NotTo(HaveOccurred())

		output := buf.String()
		Expect(output).To(ContainSubstring(parent.ID.String()))
		Expect(output).To(ContainSubstring(middle.ID.String()))
		Expect(output).To(ContainSubstring(leaf.ID.String()))

		Expect(strings.Index(output, parent.ID.String())).To(
			BeNumerically("<", strings.Index(output, middle.ID.String())))
		Expect(strings.Index(output, middle.ID.String())).To(
			BeNumerically("<", strings.Index(output, leaf.ID.String())))
	})
})
