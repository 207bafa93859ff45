package postgres_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/papercomputeco/spool/pkg/merkle"
	"github.com/papercomputeco/spool/pkg/wal"
	"github.com/papercomputeco/spool/pkg/wal/postgres"
)

// connStr returns the PostgreSQL connection string from environment or skips the test.
func connStr() string {
	dsn := os.Getenv("SPOOL_TEST_POSTGRES_DSN")
	if dsn == "" {
		Skip("SPOOL_TEST_POSTGRES_DSN not set, skipping PostgreSQL tests")
	}
	return dsn
}

var _ = Describe("Log", func() {
	var (
		ctx context.Context
		log *postgres.Log
	)

	newNode := func(text string) *merkle.Node {
		node, err := merkle.NewNode("thought", nil, json.RawMessage(`{"text":"`+text+`"}`))
		Expect(err).NotTo(HaveOccurred())
		return node
	}

	BeforeEach(func() {
		ctx = context.Background()
		dsn := connStr()

		var err error
		log, err = postgres.New(ctx, dsn)
		Expect(err).NotTo(HaveOccurred())

		// Clean the entries table before each test for isolation.
		db, err := sql.Open("pgx", dsn)
		Expect(err).NotTo(HaveOccurred())
		_, err = db.ExecContext(ctx, `TRUNCATE wal_entries RESTART IDENTITY`)
		Expect(err).NotTo(HaveOccurred())
		Expect(db.Close()).To(Succeed())
	})

	AfterEach(func() {
		if log != nil {
			Expect(log.Close()).To(Succeed())
		}
	})

	Describe("New", func() {
		It("returns an error for an unreachable server", func() {
			_, err := postgres.New(ctx, "host=invalid port=9999 user=bad dbname=bad sslmode=disable connect_timeout=1")
			Expect(err).To(HaveOccurred())
		})
	})

	It("replays entries in append order across reopen", func() {
		a := newNode("first")
		b := newNode("second")
		edge, err := merkle.NewEdge([]uuid.UUID{a.ID}, b.ID, "Transform", nil)
		Expect(err).NotTo(HaveOccurred())

		Expect(log.AppendNode(ctx, a)).To(Succeed())
		Expect(log.AppendNode(ctx, b)).To(Succeed())
		Expect(log.AppendEdge(ctx, edge)).To(Succeed())
		Expect(log.Flush(ctx)).To(Succeed())
		Expect(log.Close()).To(Succeed())

		reopened, err := postgres.New(ctx, connStr())
		Expect(err).NotTo(HaveOccurred())
		defer reopened.Close()

		kinds := []wal.Kind{}
		Expect(reopened.Replay(ctx, func(entry wal.Entry) error {
			kinds = append(kinds, entry.Kind)
			return nil
		})).To(Succeed())

		Expect(kinds).To(Equal([]wal.Kind{wal.KindAddNode, wal.KindAddNode, wal.KindAddEdge}))
	})

	It("round-trips record payloads", func() {
		node := newNode("payload")
		Expect(log.AppendNode(ctx, node)).To(Succeed())

		var decoded *merkle.Node
		Expect(log.Replay(ctx, func(entry wal.Entry) error {
			var err error
			decoded, err = entry.Node()
			return err
		})).To(Succeed())

		Expect(decoded).NotTo(BeNil())
		Expect(decoded.ID).To(Equal(node.ID))
		Expect(decoded.Verify()).To(Succeed())
	})

	It("rejects nil records", func() {
		Expect(log.AppendNode(ctx, nil)).To(MatchError(wal.ErrNilRecord))
	})

	It("propagates callback errors", func() {
		Expect(log.AppendNode(ctx, newNode("stop"))).To(Succeed())

		err := log.Replay(ctx, func(wal.Entry) error {
			return context.Canceled
		})
		Expect(err).To(MatchError(context.Canceled))
	})

	It("starts empty", func() {
		count := 0
		Expect(log.Replay(ctx, func(wal.Entry) error {
			count++
			return nil
		})).To(Succeed())
		Expect(count).To(BeZero())
	})
})
