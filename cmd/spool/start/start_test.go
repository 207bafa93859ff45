package startcmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	startcmder "github.com/papercomputeco/spool/cmd/spool/start"
	"github.com/papercomputeco/spool/pkg/start"
)

var _ = Describe("Start Command", func() {
	var (
		tmpDir      string
		originalDir string
	)

	BeforeEach(func() {
		var err error
		originalDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		tmpDir, err = os.MkdirTemp("", "spool-start-cmd-*")
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(tmpDir)).To(Succeed())
		Expect(os.Mkdir(filepath.Join(tmpDir, ".spool"), 0o755)).To(Succeed())
	})

	AfterEach(func() {
		Expect(os.Chdir(originalDir)).To(Succeed())
		Expect(os.RemoveAll(tmpDir)).To(Succeed())
	})

	Describe("command metadata", func() {
		It("has the expected use line", func() {
			Expect(startcmder.NewStartCmd().Use).To(Equal("start"))
		})

		It("rejects positional arguments", func() {
			cmd := startcmder.NewStartCmd()
			cmd.SetArgs([]string{"extra"})
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			Expect(cmd.Execute()).To(HaveOccurred())
		})

		It("hides the internal daemon flag", func() {
			cmd := startcmder.NewStartCmd()
			flag := cmd.Flags().Lookup("daemon")
			Expect(flag).NotTo(BeNil())
			Expect(flag.Hidden).To(BeTrue())
		})
	})

	Describe("--logs", func() {
		It("fails when no daemon has ever run", func() {
			cmd := startcmder.NewStartCmd()
			cmd.SetArgs([]string{"--logs"})
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})

			err := cmd.Execute()
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("daemon is not running"))
		})

		It("fails when the recorded daemon is gone", func() {
			manager, err := start.NewManager("")
			Expect(err).NotTo(HaveOccurred())
			Expect(manager.SaveState(&start.State{
				DaemonPID: -1,
				APIURL:    "http://127.0.0.1:1",
			})).To(Succeed())

			cmd := startcmder.NewStartCmd()
			cmd.SetArgs([]string{"--logs"})
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})

			err = cmd.Execute()
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("daemon is not running"))
		})
	})
})
