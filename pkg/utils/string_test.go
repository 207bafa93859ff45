package utils

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("truncate", func() {
	It("returns the string unchanged when within the limit", func() {
		Expect(Truncate("short", 10)).To(Equal("short"))
	})

	It("returns the string unchanged when exactly at the limit", func() {
		Expect(Truncate("12345", 5)).To(Equal("12345"))
	})

	It("truncates with ellipsis when over the limit", func() {
		result := Truncate("this is a long string", 10)
		Expect(result).To(Equal("this is a ..."))
	})

	It("handles a zero limit", func() {
		Expect(Truncate("anything", 0)).To(Equal("..."))
	})
})

var _ = Describe("ShortHash", func() {
	It("keeps the first 8 characters of a long hash", func() {
		Expect(ShortHash("9f3a21b04cc8812aa")).To(Equal("9f3a21b0"))
	})

	It("returns short strings unchanged", func() {
		Expect(ShortHash("abc")).To(Equal("abc"))
	})
})
