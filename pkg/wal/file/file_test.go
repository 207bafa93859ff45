package file_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/google/uuid"

	"github.com/papercomputeco/spool/pkg/merkle"
	"github.com/papercomputeco/spool/pkg/wal"
	"github.com/papercomputeco/spool/pkg/wal/file"
)

// collectFrom replays l from the start and gathers every decoded entry.
func collectFrom(ctx context.Context, l *file.Log) []wal.Entry {
	entries := []wal.Entry{}
	ExpectWithOffset(1, l.Replay(ctx, func(entry wal.Entry) error {
		entries = append(entries, entry)
		return nil
	})).To(Succeed())
	return entries
}

var _ = Describe("Log", func() {
	var (
		ctx  context.Context
		path string
		log  *file.Log
	)

	newNode := func(text string) *merkle.Node {
		node, err := merkle.NewNode("thought", nil, json.RawMessage(`{"text":"`+text+`"}`))
		Expect(err).NotTo(HaveOccurred())
		return node
	}

	collect := func(l *file.Log) []wal.Entry {
		return collectFrom(ctx, l)
	}

	BeforeEach(func() {
		ctx = context.Background()
		path = filepath.Join(GinkgoT().TempDir(), "graph.wal")

		var err error
		log, err = file.New(path)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(log.Close()).To(Succeed())
	})

	Describe("append and replay", func() {
		It("replays entries in original append order", func() {
			a := newNode("first")
			b := newNode("second")

			Expect(log.AppendNode(ctx, a)).To(Succeed())
			Expect(log.AppendNode(ctx, b)).To(Succeed())
			Expect(log.Flush(ctx)).To(Succeed())

			entries := collect(log)
			Expect(entries).To(HaveLen(2))

			first, err := entries[0].Node()
			Expect(err).NotTo(HaveOccurred())
			Expect(first.ID).To(Equal(a.ID))

			second, err := entries[1].Node()
			Expect(err).NotTo(HaveOccurred())
			Expect(second.ID).To(Equal(b.ID))
		})

		It("interleaves node and edge entries", func() {
			a := newNode("input")
			b := newNode("output")
			edge, err := merkle.NewEdge([]uuid.UUID{a.ID}, b.ID, "Transform", nil)
			Expect(err).NotTo(HaveOccurred())

			Expect(log.AppendNode(ctx, a)).To(Succeed())
			Expect(log.AppendNode(ctx, b)).To(Succeed())
			Expect(log.AppendEdge(ctx, edge)).To(Succeed())
			Expect(log.Flush(ctx)).To(Succeed())

			entries := collect(log)
			Expect(entries).To(HaveLen(3))
			Expect(entries[0].Kind).To(Equal(wal.KindAddNode))
			Expect(entries[2].Kind).To(Equal(wal.KindAddEdge))

			decoded, err := entries[2].Edge()
			Expect(err).NotTo(HaveOccurred())
			Expect(decoded.ID).To(Equal(edge.ID))
		})

		It("rejects nil records", func() {
			Expect(log.AppendNode(ctx, nil)).To(MatchError(wal.ErrNilRecord))
			Expect(log.AppendEdge(ctx, nil)).To(MatchError(wal.ErrNilRecord))
		})

		It("makes unflushed appends visible to replay on the live handle", func() {
			Expect(log.AppendNode(ctx, newNode("buffered"))).To(Succeed())

			Expect(collect(log)).To(HaveLen(1))
		})

		It("is restartable per call", func() {
			Expect(log.AppendNode(ctx, newNode("again"))).To(Succeed())
			Expect(log.Flush(ctx)).To(Succeed())

			Expect(collect(log)).To(HaveLen(1))
			Expect(collect(log)).To(HaveLen(1))
		})

		It("propagates the callback error and stops", func() {
			Expect(log.AppendNode(ctx, newNode("one"))).To(Succeed())
			Expect(log.AppendNode(ctx, newNode("two"))).To(Succeed())
			Expect(log.Flush(ctx)).To(Succeed())

			seen := 0
			err := log.Replay(ctx, func(wal.Entry) error {
				seen++
				return context.Canceled
			})

			Expect(err).To(MatchError(context.Canceled))
			Expect(seen).To(Equal(1))
		})
	})

	Describe("missing file", func() {
		It("replays an absent path as an empty log", func() {
			freshPath := filepath.Join(GinkgoT().TempDir(), "fresh.wal")
			absent, err := file.New(freshPath)
			Expect(err).NotTo(HaveOccurred())
			defer absent.Close()

			// Empty once opened, and still an empty log if the file is
			// yanked out from underneath the handle.
			Expect(collectFrom(ctx, absent)).To(BeEmpty())

			Expect(os.Remove(freshPath)).To(Succeed())
			Expect(collectFrom(ctx, absent)).To(BeEmpty())
		})
	})

	Describe("corrupted tail", func() {
		It("skips garbage between well-formed entries and keeps their order", func() {
			a := newNode("before")
			b := newNode("after")

			Expect(log.AppendNode(ctx, a)).To(Succeed())
			Expect(log.Flush(ctx)).To(Succeed())

			// Simulate a torn write landing between two good records.
			raw, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
			Expect(err).NotTo(HaveOccurred())
			_, err = raw.WriteString("{\"kind\":\"add_node\",\"ts\":\"20\x00\x01garbage\n")
			Expect(err).NotTo(HaveOccurred())
			Expect(raw.Close()).To(Succeed())

			Expect(log.AppendNode(ctx, b)).To(Succeed())
			Expect(log.Flush(ctx)).To(Succeed())

			entries := collect(log)
			Expect(entries).To(HaveLen(2))

			first, err := entries[0].Node()
			Expect(err).NotTo(HaveOccurred())
			second, err := entries[1].Node()
			Expect(err).NotTo(HaveOccurred())
			Expect(first.ID).To(Equal(a.ID))
			Expect(second.ID).To(Equal(b.ID))
		})

		It("treats a truncated final record as absent", func() {
			Expect(log.AppendNode(ctx, newNode("whole"))).To(Succeed())
			Expect(log.Flush(ctx)).To(Succeed())

			raw, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
			Expect(err).NotTo(HaveOccurred())
			_, err = raw.WriteString(`{"kind":"add_node","ts":"2026-01-01T00:00:0`)
			Expect(err).NotTo(HaveOccurred())
			Expect(raw.Close()).To(Succeed())

			Expect(collect(log)).To(HaveLen(1))
		})
	})

	Describe("Close", func() {
		It("is safe to call more than once", func() {
			Expect(log.Close()).To(Succeed())
			Expect(log.Close()).To(Succeed())
		})

		It("refuses appends after close", func() {
			Expect(log.Close()).To(Succeed())

			Expect(log.AppendNode(ctx, newNode("late"))).To(MatchError(wal.ErrClosed))
			Expect(log.Flush(ctx)).To(MatchError(wal.ErrClosed))
		})

		It("lets a new log reopen the same path with history intact", func() {
			a := newNode("persisted")
			Expect(log.AppendNode(ctx, a)).To(Succeed())
			Expect(log.Close()).To(Succeed())

			reopened, err := file.New(path)
			Expect(err).NotTo(HaveOccurred())
			defer reopened.Close()

			Expect(reopened.AppendNode(ctx, newNode("appended"))).To(Succeed())
			Expect(reopened.Flush(ctx)).To(Succeed())

			entries := []wal.Entry{}
			Expect(reopened.Replay(ctx, func(entry wal.Entry) error {
				entries = append(entries, entry)
				return nil
			})).To(Succeed())
			Expect(entries).To(HaveLen(2))
		})
	})
})
