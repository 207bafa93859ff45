package merkle_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/google/uuid"

	"github.com/papercomputeco/spool/pkg/merkle"
)

// testPayload creates a simple JSON payload for testing with the given text.
func testPayload(text string) json.RawMessage {
	return json.RawMessage(`{"text":"` + text + `"}`)
}

var _ = Describe("Node", func() {
	Describe("NewNode", func() {
		Context("when creating a root node (no parents)", func() {
			It("creates a node with the given type and payload", func() {
				node, err := merkle.NewNode("thought", nil, testPayload("hello world"))

				Expect(err).NotTo(HaveOccurred())
				Expect(node.TypeName).To(Equal("thought"))
				Expect(node.Payload).To(MatchJSON(`{"text":"hello world"}`))
			})

			It("assigns a fresh id", func() {
				node, err := merkle.NewNode("thought", nil, testPayload("test"))

				Expect(err).NotTo(HaveOccurred())
				Expect(node.ID).NotTo(Equal(uuid.Nil))
			})

			It("normalizes nil parents to an empty slice", func() {
				node, err := merkle.NewNode("thought", nil, testPayload("test"))

				Expect(err).NotTo(HaveOccurred())
				Expect(node.ParentIDs).NotTo(BeNil())
				Expect(node.ParentIDs).To(BeEmpty())
				Expect(node.IsRoot()).To(BeTrue())
			})

			It("computes a non-empty hash", func() {
				node, err := merkle.NewNode("thought", nil, testPayload("test"))

				Expect(err).NotTo(HaveOccurred())
				Expect(node.Hash).To(HaveLen(64))
			})

			It("compacts the payload onto a single line", func() {
				node, err := merkle.NewNode("thought", nil, json.RawMessage("{\n  \"text\": \"spaced\"\n}"))

				Expect(err).NotTo(HaveOccurred())
				Expect(string(node.Payload)).To(Equal(`{"text":"spaced"}`))
			})

			It("rejects payloads that are not valid JSON", func() {
				_, err := merkle.NewNode("thought", nil, json.RawMessage(`not json`))

				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("invalid node payload"))
			})

			It("allows an empty payload", func() {
				node, err := merkle.NewNode("marker", nil, nil)

				Expect(err).NotTo(HaveOccurred())
				Expect(node.Payload).To(BeEmpty())
				Expect(node.Verify()).To(Succeed())
			})
		})

		Context("when creating a derived node", func() {
			It("records the parent ids in order", func() {
				a, err := merkle.NewNode("thought", nil, testPayload("a"))
				Expect(err).NotTo(HaveOccurred())
				b, err := merkle.NewNode("thought", nil, testPayload("b"))
				Expect(err).NotTo(HaveOccurred())

				child, err := merkle.NewNode("synthesis", []uuid.UUID{a.ID, b.ID}, testPayload("c"))

				Expect(err).NotTo(HaveOccurred())
				Expect(child.ParentIDs).To(Equal([]uuid.UUID{a.ID, b.ID}))
				Expect(child.IsRoot()).To(BeFalse())
			})

			It("copies the parent slice so later caller mutation cannot corrupt it", func() {
				a, err := merkle.NewNode("thought", nil, testPayload("a"))
				Expect(err).NotTo(HaveOccurred())

				parents := []uuid.UUID{a.ID}
				child, err := merkle.NewNode("synthesis", parents, testPayload("c"))
				Expect(err).NotTo(HaveOccurred())

				parents[0] = uuid.New()

				Expect(child.ParentIDs[0]).To(Equal(a.ID))
				Expect(child.Verify()).To(Succeed())
			})

			It("produces different hashes for different parents", func() {
				a, err := merkle.NewNode("thought", nil, testPayload("a"))
				Expect(err).NotTo(HaveOccurred())
				b, err := merkle.NewNode("thought", nil, testPayload("b"))
				Expect(err).NotTo(HaveOccurred())

				childOfA, err := merkle.NewNode("synthesis", []uuid.UUID{a.ID}, testPayload("same"))
				Expect(err).NotTo(HaveOccurred())
				childOfB, err := merkle.NewNode("synthesis", []uuid.UUID{b.ID}, testPayload("same"))
				Expect(err).NotTo(HaveOccurred())

				Expect(childOfA.Hash).NotTo(Equal(childOfB.Hash))
			})
		})
	})

	Describe("Verify", func() {
		It("succeeds for a freshly constructed node", func() {
			node, err := merkle.NewNode("thought", nil, testPayload("test"))

			Expect(err).NotTo(HaveOccurred())
			Expect(node.Verify()).To(Succeed())
		})

		It("fails when the payload is tampered with", func() {
			node, err := merkle.NewNode("thought", nil, testPayload("original"))
			Expect(err).NotTo(HaveOccurred())

			node.Payload = testPayload("tampered")

			verifyErr := node.Verify()
			Expect(verifyErr).To(HaveOccurred())
			Expect(verifyErr).To(BeAssignableToTypeOf(merkle.ErrHashMismatch{}))
		})

		It("fails when the type name is tampered with", func() {
			node, err := merkle.NewNode("thought", nil, testPayload("test"))
			Expect(err).NotTo(HaveOccurred())

			node.TypeName = "claim"

			Expect(node.Verify()).NotTo(Succeed())
		})

		It("survives a JSON round trip", func() {
			node, err := merkle.NewNode("thought", nil, testPayload("round trip"))
			Expect(err).NotTo(HaveOccurred())

			data, err := json.Marshal(node)
			Expect(err).NotTo(HaveOccurred())

			var decoded merkle.Node
			Expect(json.Unmarshal(data, &decoded)).To(Succeed())
			Expect(decoded.Hash).To(Equal(node.Hash))
			Expect(decoded.Verify()).To(Succeed())
		})
	})
})
