package walopen

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/papercomputeco/spool/pkg/config"
	"github.com/papercomputeco/spool/pkg/wal/file"
	"github.com/papercomputeco/spool/pkg/wal/inmemory"
)

var _ = Describe("Open", func() {
	var (
		ctx       context.Context
		v         *viper.Viper
		configDir string
	)

	BeforeEach(func() {
		ctx = context.Background()
		v = viper.New()
		configDir = GinkgoT().TempDir()
	})

	It("defaults to the file driver inside the config dir", func() {
		log, target, err := Open(ctx, v, configDir, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		defer log.Close()

		Expect(target).To(Equal(filepath.Join(configDir, config.WALFilename)))
		Expect(log).To(BeAssignableToTypeOf(&file.Log{}))

		_, err = os.Stat(target)
		Expect(err).NotTo(HaveOccurred())
	})

	It("honors an explicit storage.path for the file driver", func() {
		path := filepath.Join(GinkgoT().TempDir(), "elsewhere.wal")
		v.Set("storage.driver", config.DriverFile)
		v.Set("storage.path", path)

		log, target, err := Open(ctx, v, configDir, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		defer log.Close()

		Expect(target).To(Equal(path))
	})

	It("opens a sqlite log at the resolved database path", func() {
		v.Set("storage.driver", config.DriverSQLite)

		log, target, err := Open(ctx, v, configDir, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		defer log.Close()

		Expect(target).To(Equal(filepath.Join(configDir, config.SQLiteFilename)))

		_, err = os.Stat(target)
		Expect(err).NotTo(HaveOccurred())
	})

	It("opens an in-memory log with a memory target", func() {
		v.Set("storage.driver", config.DriverInMemory)

		log, target, err := Open(ctx, v, configDir, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		defer log.Close()

		Expect(target).To(Equal("memory"))
		Expect(log).To(BeAssignableToTypeOf(&inmemory.Log{}))
	})

	It("rejects the postgres driver without a DSN", func() {
		v.Set("storage.driver", config.DriverPostgres)

		_, _, err := Open(ctx, v, configDir, zap.NewNop())
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("postgres_dsn is required"))
	})

	It("rejects unknown drivers", func() {
		v.Set("storage.driver", "etcd")

		_, _, err := Open(ctx, v, configDir, zap.NewNop())
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring(`unknown storage driver "etcd"`))
	})
})

var _ = Describe("NewLog", func() {
	var (
		ctx       context.Context
		configDir string
	)

	BeforeEach(func() {
		ctx = context.Background()
		configDir = GinkgoT().TempDir()
	})

	It("opens a file log at an explicit target", func() {
		path := filepath.Join(GinkgoT().TempDir(), "dest.wal")

		log, target, err := NewLog(ctx, config.DriverFile, path, configDir, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		defer log.Close()

		Expect(target).To(Equal(path))
		Expect(log).To(BeAssignableToTypeOf(&file.Log{}))
	})

	It("falls back to the config dir when the target is empty", func() {
		log, target, err := NewLog(ctx, config.DriverSQLite, "", configDir, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		defer log.Close()

		Expect(target).To(Equal(filepath.Join(configDir, config.SQLiteFilename)))
	})

	It("rejects the postgres driver without a DSN", func() {
		_, _, err := NewLog(ctx, config.DriverPostgres, "", configDir, zap.NewNop())
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("DSN is required"))
	})

	It("rejects unknown drivers", func() {
		_, _, err := NewLog(ctx, "redis", "", configDir, zap.NewNop())
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring(`unknown storage driver "redis"`))
	})
})

var _ = Describe("RequireFilePath", func() {
	It("resolves the default path for the file driver", func() {
		configDir := GinkgoT().TempDir()
		v := viper.New()

		path, err := RequireFilePath(v, configDir, "compact")
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal(filepath.Join(configDir, config.WALFilename)))
	})

	It("prefers an explicit storage.path", func() {
		v := viper.New()
		v.Set("storage.path", "/tmp/custom.wal")

		path, err := RequireFilePath(v, "", "compact")
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal("/tmp/custom.wal"))
	})

	It("rejects non-file drivers", func() {
		v := viper.New()
		v.Set("storage.driver", config.DriverSQLite)

		_, err := RequireFilePath(v, "", "compact")
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("compact requires the file driver"))
	})
})
