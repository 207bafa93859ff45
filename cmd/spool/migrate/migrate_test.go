package migratecmder_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	migratecmder "github.com/papercomputeco/spool/cmd/spool/migrate"
	"github.com/papercomputeco/spool/pkg/merkle"
	"github.com/papercomputeco/spool/pkg/wal"
	walfile "github.com/papercomputeco/spool/pkg/wal/file"
	walsqlite "github.com/papercomputeco/spool/pkg/wal/sqlite"
)

var _ = Describe("Migrate Command", func() {
	var (
		tmpDir      string
		originalDir string
		walPath     string
	)

	BeforeEach(func() {
		var err error
		originalDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		tmpDir, err = os.MkdirTemp("", "spool-migrate-test-*")
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(tmpDir)).To(Succeed())
		Expect(os.Mkdir(filepath.Join(tmpDir, ".spool"), 0o755)).To(Succeed())

		walPath = filepath.Join(tmpDir, ".spool", "graph.wal")
	})

	AfterEach(func() {
		Expect(os.Chdir(originalDir)).To(Succeed())
		Expect(os.RemoveAll(tmpDir)).To(Succeed())
	})

	Describe("command metadata", func() {
		It("has the expected use line", func() {
			Expect(migratecmder.NewMigrateCmd().Use).To(Equal("migrate"))
		})

		It("rejects positional arguments", func() {
			cmd := migratecmder.NewMigrateCmd()
			cmd.SetArgs([]string{"extra"})
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			Expect(cmd.Execute()).To(HaveOccurred())
		})
	})

	Describe("destination validation", func() {
		It("requires a destination driver", func() {
			cmd := migratecmder.NewMigrateCmd()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})

			err := cmd.Execute()
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("--to is required"))
		})

		It("rejects an inmemory destination", func() {
			cmd := migratecmder.NewMigrateCmd()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetArgs([]string{"--to", "inmemory"})

			err := cmd.Execute()
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("cannot be a migration destination"))
		})

		It("refuses to copy a log onto itself", func() {
			seedGraph(walPath)

			cmd := migratecmder.NewMigrateCmd()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetArgs([]string{"--wal", walPath, "--to", "file", "--to-path", walPath})

			err := cmd.Execute()
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("source and destination are the same log"))
		})

		It("refuses a destination that already holds entries", func() {
			seedGraph(walPath)
			destPath := filepath.Join(tmpDir, "occupied.wal")
			seedGraph(destPath)

			cmd := migratecmder.NewMigrateCmd()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetArgs([]string{"--to", "file", "--to-path", destPath})

			err := cmd.Execute()
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("not empty"))
		})
	})

	Describe("execution", func() {
		It("copies the default file log into another file", func() {
			seedGraph(walPath)
			destPath := filepath.Join(tmpDir, "copy.wal")

			var buf bytes.Buffer
			cmd := migratecmder.NewMigrateCmd()
			cmd.SetOut(&buf)
			cmd.SetErr(&buf)
			cmd.SetArgs([]string{"--to", "file", "--to-path", destPath})

			Expect(cmd.Execute()).To(Succeed())

			out := buf.String()
			Expect(out).To(ContainSubstring("copying"))
			Expect(out).To(ContainSubstring("2 nodes, 1 edges copied"))

			Expect(countEntries(destPath)).To(Equal(3))
		})

		It("copies a file log into a sqlite database", func() {
			seedGraph(walPath)
			destPath := filepath.Join(tmpDir, "copy.db")

			var buf bytes.Buffer
			cmd := migratecmder.NewMigrateCmd()
			cmd.SetOut(&buf)
			cmd.SetErr(&buf)
			cmd.SetArgs([]string{"--to", "sqlite", "--to-path", destPath})

			Expect(cmd.Execute()).To(Succeed())
			Expect(buf.String()).To(ContainSubstring("2 nodes, 1 edges copied"))

			db, err := walsqlite.New(context.Background(), destPath)
			Expect(err).NotTo(HaveOccurred())
			defer db.Close()

			entries := 0
			Expect(db.Replay(context.Background(), func(wal.Entry) error {
				entries++
				return nil
			})).To(Succeed())
			Expect(entries).To(Equal(3))
		})

		It("leaves the destination untouched in dry-run mode", func() {
			seedGraph(walPath)
			destPath := filepath.Join(tmpDir, "untouched.wal")

			var buf bytes.Buffer
			cmd := migratecmder.NewMigrateCmd()
			cmd.SetOut(&buf)
			cmd.SetErr(&buf)
			cmd.SetArgs([]string{"--to", "file", "--to-path", destPath, "--dry-run"})

			Expect(cmd.Execute()).To(Succeed())

			out := buf.String()
			Expect(out).To(ContainSubstring("Dry run mode"))
			Expect(out).To(ContainSubstring("2 nodes, 1 edges copied"))

			Expect(countEntries(destPath)).To(BeZero())
		})
	})
})

// seedGraph writes two nodes and one edge to a fresh file log at path.
func seedGraph(path string) {
	ctx := context.Background()

	log, err := walfile.New(path)
	ExpectWithOffset(1, err).NotTo(HaveOccurred())
	defer log.Close()

	parent, err := merkle.NewNode("source", nil, json.RawMessage(`{"seq":1}`))
	ExpectWithOffset(1, err).NotTo(HaveOccurred())
	ExpectWithOffset(1, log.AppendNode(ctx, parent)).To(Succeed())

	child, err := merkle.NewNode("artifact", []uuid.UUID{parent.ID}, json.RawMessage(`{"seq":2}`))
	ExpectWithOffset(1, err).NotTo(HaveOccurred())
	ExpectWithOffset(1, log.AppendNode(ctx, child)).To(Succeed())

	edge, err := merkle.NewEdge(
		[]uuid.UUID{parent.ID},
		child.ID,
		"transform",
		json.RawMessage(`{"step":"build"}`),
	)
	ExpectWithOffset(1, err).NotTo(HaveOccurred())
	ExpectWithOffset(1, log.AppendEdge(ctx, edge)).To(Succeed())

	ExpectWithOffset(1, log.Flush(ctx)).To(Succeed())
}

// countEntries opens the file log at path and counts replayable entries.
func countEntries(path string) int {
	log, err := walfile.New(path)
	ExpectWithOffset(1, err).NotTo(HaveOccurred())
	defer log.Close()

	entries := 0
	ExpectWithOffset(1, log.Replay(context.Background(), func(wal.Entry) error {
		entries++
		return nil
	})).To(Succeed())
	return entries
}
