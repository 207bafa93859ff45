package sse

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Writer", func() {
	var dst *bytes.Buffer

	BeforeEach(func() {
		dst = &bytes.Buffer{}
	})

	Describe("WriteEvent", func() {
		It("writes type, id, data, and the blank-line terminator", func() {
			w := NewWriter(dst)

			err := w.WriteEvent(&Event{
				Type: "spool.node.appended",
				ID:   "ev-1",
				Data: "{\"record\":{\"id\":\"a\"}}",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(dst.String()).To(Equal("event: spool.node.appended\nid: ev-1\ndata: {\"record\":{\"id\":\"a\"}}\n\n"))
		})

		It("omits empty type and id fields", func() {
			w := NewWriter(dst)

			Expect(w.WriteEvent(&Event{Data: "hello"})).To(Succeed())
			Expect(dst.String()).To(Equal("data: hello\n\n"))
		})

		It("splits multi-line data into one data line per segment", func() {
			w := NewWriter(dst)

			Expect(w.WriteEvent(&Event{Data: "one\ntwo"})).To(Succeed())
			Expect(dst.String()).To(Equal("data: one\ndata: two\n\n"))
		})

		It("ignores nil events", func() {
			w := NewWriter(dst)

			Expect(w.WriteEvent(nil)).To(Succeed())
			Expect(dst.Len()).To(BeZero())
		})

		It("round-trips through Reader", func() {
			w := NewWriter(dst)

			Expect(w.WriteEvent(&Event{Type: "spool.edge.appended", ID: "ev-2", Data: "one\ntwo"})).To(Succeed())
			Expect(w.WriteEvent(&Event{Data: "plain"})).To(Succeed())

			r := NewReader(dst)

			ev1, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev1.Type).To(Equal("spool.edge.appended"))
			Expect(ev1.ID).To(Equal("ev-2"))
			Expect(ev1.Data).To(Equal("one\ntwo"))

			ev2, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev2.Data).To(Equal("plain"))

			ev3, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev3).To(BeNil())
		})
	})

	Describe("WriteComment", func() {
		It("writes a comment line the reader skips", func() {
			w := NewWriter(dst)

			Expect(w.WriteComment("keep-alive")).To(Succeed())
			Expect(w.WriteEvent(&Event{Data: "hello"})).To(Succeed())

			r := NewReader(dst)
			ev, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Data).To(Equal("hello"))
		})
	})
})
