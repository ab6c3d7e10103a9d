package transcript_test

import (
	"fmt"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/lenschat/pkg/transcript"
)

var _ = Describe("Transcript", func() {
	var tr *transcript.Transcript

	BeforeEach(func() {
		tr = transcript.New()
	})

	Describe("Append", func() {
		It("starts empty", func() {
			Expect(tr.Len()).To(Equal(0))
			Expect(tr.All()).To(BeEmpty())

			_, ok := tr.Last()
			Expect(ok).To(BeFalse())
		})

		It("stores turns in insertion order", func() {
			for i := range 3 {
				_, err := tr.Append(transcript.UserTurn(fmt.Sprintf("question %d", i), nil))
				Expect(err).NotTo(HaveOccurred())
				_, err = tr.Append(transcript.AssistantTurn(fmt.Sprintf("answer %d", i)))
				Expect(err).NotTo(HaveOccurred())
			}

			all := tr.All()
			Expect(all).To(HaveLen(6))
			for i := range 3 {
				Expect(all[2*i].Role).To(Equal(transcript.RoleUser))
				Expect(all[2*i].Text).To(Equal(fmt.Sprintf("question %d", i)))
				Expect(all[2*i+1].Role).To(Equal(transcript.RoleAssistant))
				Expect(all[2*i+1].Text).To(Equal(fmt.Sprintf("answer %d", i)))
			}
		})

		It("accepts an image-only user turn", func() {
			turn, err := tr.Append(transcript.UserTurn("", []byte{0x89, 'P', 'N', 'G'}))
			Expect(err).NotTo(HaveOccurred())
			Expect(turn.HasImage()).To(BeTrue())
		})

		It("rejects a user turn without text or image", func() {
			_, err := tr.Append(transcript.UserTurn("", nil))
			Expect(err).To(MatchError(transcript.ErrEmptyTurn))
			Expect(tr.Len()).To(Equal(0))
		})

		It("rejects an assistant turn with an image", func() {
			_, err := tr.Append(transcript.Turn{Role: transcript.RoleAssistant, Text: "hi", Image: []byte{1}})
			Expect(err).To(MatchError(transcript.ErrAssistantImage))
		})

		It("rejects unknown roles", func() {
			_, err := tr.Append(transcript.Turn{Role: "system", Text: "be nice"})
			Expect(err).To(MatchError(transcript.ErrUnknownRole))
		})

		It("allows an empty assistant reply", func() {
			_, err := tr.Append(transcript.AssistantTurn(""))
			Expect(err).NotTo(HaveOccurred())
		})

		It("sets a creation timestamp", func() {
			turn, err := tr.Append(transcript.UserTurn("hello", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(turn.CreatedAt).NotTo(BeZero())
		})
	})

	Describe("Chaining", func() {
		It("leaves the first turn without a parent", func() {
			turn, err := tr.Append(transcript.UserTurn("hello", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(turn.ParentHash).To(BeNil())
			Expect(turn.Hash).To(MatchRegexp("^[a-f0-9]{64}$"))
		})

		It("links each turn to its predecessor", func() {
			first, _ := tr.Append(transcript.UserTurn("hello", nil))
			second, _ := tr.Append(transcript.AssistantTurn("hi"))
			third, _ := tr.Append(transcript.UserTurn("how are you?", nil))

			Expect(*second.ParentHash).To(Equal(first.Hash))
			Expect(*third.ParentHash).To(Equal(second.Hash))
			Expect(tr.Verify()).To(Succeed())
		})

		It("produces identical hashes for identical histories", func() {
			other := transcript.New()

			a, _ := tr.Append(transcript.UserTurn("same", []byte{1, 2, 3}))
			b, _ := other.Append(transcript.UserTurn("same", []byte{1, 2, 3}))
			Expect(a.Hash).To(Equal(b.Hash))
		})

		It("produces different hashes when the image differs", func() {
			other := transcript.New()

			a, _ := tr.Append(transcript.UserTurn("same", []byte{1, 2, 3}))
			b, _ := other.Append(transcript.UserTurn("same", []byte{3, 2, 1}))
			Expect(a.Hash).NotTo(Equal(b.Hash))
		})

		It("produces different hashes for the same content under different parents", func() {
			other := transcript.New()
			_, _ = other.Append(transcript.UserTurn("different start", nil))

			a, _ := tr.Append(transcript.UserTurn("same", nil))
			b, _ := other.Append(transcript.UserTurn("same", nil))
			Expect(a.Hash).NotTo(Equal(b.Hash))
		})
	})

	Describe("Immutability", func() {
		It("does not share image buffers with the caller", func() {
			img := []byte{1, 2, 3}
			_, err := tr.Append(transcript.UserTurn("look", img))
			Expect(err).NotTo(HaveOccurred())

			img[0] = 9
			stored, _ := tr.Get(0)
			Expect(stored.Image).To(Equal([]byte{1, 2, 3}))

			stored.Image[1] = 9
			again, _ := tr.Get(0)
			Expect(again.Image).To(Equal([]byte{1, 2, 3}))
			Expect(tr.Verify()).To(Succeed())
		})

		It("returns out-of-range lookups as missing", func() {
			_, ok := tr.Get(0)
			Expect(ok).To(BeFalse())
			_, ok = tr.Get(-1)
			Expect(ok).To(BeFalse())
		})
	})

	Describe("Concurrency", func() {
		It("keeps a valid chain under concurrent appends", func() {
			var wg sync.WaitGroup
			for i := range 20 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					_, err := tr.Append(transcript.UserTurn(fmt.Sprintf("msg %d", i), nil))
					Expect(err).NotTo(HaveOccurred())
				}()
			}
			wg.Wait()

			Expect(tr.Len()).To(Equal(20))
			Expect(tr.Verify()).To(Succeed())
		})
	})
})
