package migrate_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/google/uuid"

	"github.com/papercomputeco/spool/pkg/merkle"
	"github.com/papercomputeco/spool/pkg/migrate"
	"github.com/papercomputeco/spool/pkg/wal"
	"github.com/papercomputeco/spool/pkg/wal/file"
	"github.com/papercomputeco/spool/pkg/wal/inmemory"
)

// collect replays l from the start and gathers every decoded entry.
func collect(ctx context.Context, l wal.Log) []wal.Entry {
	entries := []wal.Entry{}
	ExpectWithOffset(1, l.Replay(ctx, func(entry wal.Entry) error {
		entries = append(entries, entry)
		return nil
	})).To(Succeed())
	return entries
}

var _ = Describe("Migrator", func() {
	var ctx context.Context

	newNode := func(text string) *merkle.Node {
		node, err := merkle.NewNode("thought", nil, json.RawMessage(`{"text":"`+text+`"}`))
		Expect(err).NotTo(HaveOccurred())
		return node
	}

	BeforeEach(func() {
		ctx = context.Background()
	})

	Describe("New", func() {
		It("rejects a nil source", func() {
			_, err := migrate.New(nil, inmemory.New(), migrate.Options{})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("nil source"))
		})

		It("rejects a nil destination", func() {
			_, err := migrate.New(inmemory.New(), nil, migrate.Options{})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("nil destination"))
		})
	})

	Describe("Run", func() {
		It("copies nodes and edges in the original order", func() {
			src := inmemory.New()
			dst := inmemory.New()

			a := newNode("input")
			b := newNode("output")
			edge, err := merkle.NewEdge([]uuid.UUID{a.ID}, b.ID, "Transform", nil)
			Expect(err).NotTo(HaveOccurred())

			Expect(src.AppendNode(ctx, a)).To(Succeed())
			Expect(src.AppendNode(ctx, b)).To(Succeed())
			Expect(src.AppendEdge(ctx, edge)).To(Succeed())

			m, err := migrate.New(src, dst, migrate.Options{})
			Expect(err).NotTo(HaveOccurred())

			result, err := m.Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Nodes).To(Equal(2))
			Expect(result.Edges).To(Equal(1))
			Expect(result.Skipped).To(BeZero())

			entries := collect(ctx, dst)
			Expect(entries).To(HaveLen(3))
			Expect(entries[0].Kind).To(Equal(wal.KindAddNode))
			Expect(entries[1].Kind).To(Equal(wal.KindAddNode))
			Expect(entries[2].Kind).To(Equal(wal.KindAddEdge))

			first, err := entries[0].Node()
			Expect(err).NotTo(HaveOccurred())
			Expect(first.ID).To(Equal(a.ID))

			copied, err := entries[2].Edge()
			Expect(err).NotTo(HaveOccurred())
			Expect(copied.ID).To(Equal(edge.ID))
			Expect(copied.Hash).To(Equal(edge.Hash))
		})

		It("counts without writing in dry-run mode", func() {
			src := inmemory.New()
			dst := inmemory.New()

			Expect(src.AppendNode(ctx, newNode("only"))).To(Succeed())

			m, err := migrate.New(src, dst, migrate.Options{DryRun: true})
			Expect(err).NotTo(HaveOccurred())

			result, err := m.Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Nodes).To(Equal(1))

			Expect(collect(ctx, dst)).To(BeEmpty())
		})

		It("refuses a destination that already holds entries", func() {
			src := inmemory.New()
			dst := inmemory.New()

			Expect(src.AppendNode(ctx, newNode("new"))).To(Succeed())
			Expect(dst.AppendNode(ctx, newNode("old"))).To(Succeed())

			m, err := migrate.New(src, dst, migrate.Options{})
			Expect(err).NotTo(HaveOccurred())

			_, err = m.Run(ctx)
			Expect(err).To(MatchError(migrate.ErrDestinationNotEmpty))

			Expect(collect(ctx, dst)).To(HaveLen(1))
		})

		It("migrates an empty source into an empty destination", func() {
			m, err := migrate.New(inmemory.New(), inmemory.New(), migrate.Options{})
			Expect(err).NotTo(HaveOccurred())

			result, err := m.Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Nodes).To(BeZero())
			Expect(result.Edges).To(BeZero())
		})

		It("skips entries whose payload no longer decodes", func() {
			dir := GinkgoT().TempDir()
			path := filepath.Join(dir, "source.wal")

			src, err := file.New(path)
			Expect(err).NotTo(HaveOccurred())
			defer src.Close()

			Expect(src.AppendNode(ctx, newNode("good"))).To(Succeed())
			Expect(src.Flush(ctx)).To(Succeed())

			// A well-formed envelope around a payload that is not a node,
			// and an entry of a kind this version does not know.
			raw, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
			Expect(err).NotTo(HaveOccurred())
			_, err = raw.WriteString(`{"kind":"add_node","ts":"2026-01-01T00:00:00Z","payload":{"id":123}}` + "\n")
			Expect(err).NotTo(HaveOccurred())
			_, err = raw.WriteString(`{"kind":"compact","ts":"2026-01-01T00:00:00Z","payload":{}}` + "\n")
			Expect(err).NotTo(HaveOccurred())
			Expect(raw.Close()).To(Succeed())

			dst := inmemory.New()
			m, err := migrate.New(src, dst, migrate.Options{})
			Expect(err).NotTo(HaveOccurred())

			result, err := m.Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Nodes).To(Equal(1))
			Expect(result.Skipped).To(Equal(2))

			Expect(collect(ctx, dst)).To(HaveLen(1))
		})

		It("leaves a file destination durable", func() {
			src := inmemory.New()
			Expect(src.AppendNode(ctx, newNode("persisted"))).To(Succeed())

			path := filepath.Join(GinkgoT().TempDir(), "dest.wal")
			dst, err := file.New(path)
			Expect(err).NotTo(HaveOccurred())

			m, err := migrate.New(src, dst, migrate.Options{})
			Expect(err).NotTo(HaveOccurred())

			_, err = m.Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(dst.Close()).To(Succeed())

			reopened, err := file.New(path)
			Expect(err).NotTo(HaveOccurred())
			defer reopened.Close()

			Expect(collect(ctx, reopened)).To(HaveLen(1))
		})
	})
})

var _ = Describe("Result", func() {
	It("summarizes the copy counts", func() {
		r := &migrate.Result{Nodes: 4, Edges: 2, Skipped: 1}

		summary := r.Summary()
		Expect(summary).To(ContainSubstring("4 nodes"))
		Expect(summary).To(ContainSubstring("2 edges"))
		Expect(summary).To(ContainSubstring("Skipped 1"))
	})
})
