package cliui_test

import (
	"bytes"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/spool/pkg/cliui"
)

var _ = Describe("FormatDuration", func() {
	It("renders sub-second durations in milliseconds", func() {
		Expect(cliui.FormatDuration(12 * time.Millisecond)).To(Equal("12ms"))
	})

	It("renders second-scale durations with one decimal", func() {
		Expect(cliui.FormatDuration(3200 * time.Millisecond)).To(Equal("3.2s"))
	})
})

var _ = Describe("FormatBytes", func() {
	It("renders small counts as bytes", func() {
		Expect(cliui.FormatBytes(512)).To(Equal("512 B"))
	})

	It("renders kilobyte-scale counts", func() {
		Expect(cliui.FormatBytes(4300)).To(Equal("4.2 KB"))
	})

	It("renders megabyte-scale counts", func() {
		Expect(cliui.FormatBytes(5 * 1024 * 1024)).To(Equal("5.0 MB"))
	})
})

var _ = Describe("Mark", func() {
	It("marks nil errors as success", func() {
		Expect(cliui.Mark(nil)).To(Equal(cliui.SuccessMark))
	})

	It("marks non-nil errors as failure", func() {
		Expect(cliui.Mark(errors.New("boom"))).To(Equal(cliui.FailMark))
	})
})

var _ = Describe("Step", func() {
	It("writes a success line to a non-terminal writer", func() {
		var buf bytes.Buffer

		err := cliui.Step(&buf, "replaying log", func() error { return nil })
		Expect(err).NotTo(HaveOccurred())
		Expect(buf.String()).To(ContainSubstring("replaying log"))
		Expect(buf.String()).To(ContainSubstring(cliui.SuccessMark))
	})

	It("returns the step error and writes a failure line", func() {
		var buf bytes.Buffer
		boom := errors.New("boom")

		err := cliui.Step(&buf, "verifying hashes", func() error { return boom })
		Expect(err).To(MatchError(boom))
		Expect(buf.String()).To(ContainSubstring(cliui.FailMark))
	})
})

var _ = Describe("RenderMarkdown", func() {
	It("renders headings without error", func() {
		out, err := cliui.RenderMarkdown("# Node\n\nsome content\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("Node"))
	})
})
