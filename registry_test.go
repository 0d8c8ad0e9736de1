package webglue

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

type emitted struct {
	apiName, eventName string
	args               []interface{}
}

var _ = Describe("Registry", func() {
	var emits []emitted
	emit := func(apiName, eventName string, args []interface{}) {
		emits = append(emits, emitted{apiName, eventName, args})
	}
	BeforeEach(func() {
		emits = nil
	})

	Context("When modules declare APIs", func() {
		It("should let later modules replace an API with the same name", func() {
			r, err := newRegistry([]Module{
				{API: map[string]Functions{
					"math": {"add": func(a, b int) int { return a + b }, "sub": func(a, b int) int { return a - b }},
					"text": {"upper": func(s string) string { return s }},
				}},
				{API: map[string]Functions{
					"math": {"mul": func(a, b int) int { return a * b }},
				}},
			}, emit)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.discovery.API).To(Equal(map[string]map[string]functionRef{
				"math": {"mul": {API: "math", Fnc: "mul"}},
				"text": {"upper": {API: "text", Fnc: "upper"}},
			}))
		})
		It("should reject values which are no funcs", func() {
			_, err := newRegistry([]Module{
				{API: map[string]Functions{"math": {"pi": 3.14, "e": 2.71}}},
			}, emit)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("math.pi"))
			Expect(err.Error()).To(ContainSubstring("math.e"))
		})
		It("should use the lower cased exported methods of a receiver", func() {
			functions := MethodsOf(&calculator{})
			Expect(functions).To(HaveKey("add"))
			Expect(functions).To(HaveKey("divide"))
			Expect(functions).NotTo(HaveKey("Add"))
		})
	})

	Context("When modules declare events", func() {
		It("should list every leaf under its namespace and bind the slots", func() {
			tick := NewEventSlot()
			joined := NewEventSlot()
			left := NewEventSlot()
			said := NewEventSlot()
			r, err := newRegistry([]Module{
				{Events: Events{"tick": tick}},
				{Events: Events{
					"chat": Events{
						"said": said,
						"room": map[string]interface{}{"left": left, "joined": joined},
					},
				}},
			}, emit)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.discovery.Events).To(Equal(map[string][]string{
				"":          {"tick"},
				"chat":      {"said"},
				"chat.room": {"joined", "left"},
			}))
			for _, slot := range []*EventSlot{tick, joined, left, said} {
				Expect(slot.Bound()).To(BeTrue())
			}
			apiName, eventName := joined.Name()
			Expect(apiName).To(Equal("chat.room"))
			Expect(eventName).To(Equal("joined"))
			joined.Emit("alice")
			Expect(emits).To(Equal([]emitted{{"chat.room", "joined", []interface{}{"alice"}}}))
		})
		It("should refuse slots bound to another server and bind nothing", func() {
			used := NewEventSlot()
			_, err := newRegistry([]Module{{Events: Events{"used": used}}}, emit)
			Expect(err).NotTo(HaveOccurred())
			fresh := NewEventSlot()
			_, err = newRegistry([]Module{{Events: Events{"fresh": fresh, "used": used}}}, emit)
			Expect(errors.Is(err, errSlotBound)).To(BeTrue())
			Expect(fresh.Bound()).To(BeFalse())
		})
		It("should refuse the same slot declared twice", func() {
			slot := NewEventSlot()
			_, err := newRegistry([]Module{{Events: Events{"a": slot, "b": slot}}}, emit)
			Expect(err).To(HaveOccurred())
			Expect(slot.Bound()).To(BeFalse())
		})
		It("should do nothing when an unbound slot emits", func() {
			NewEventSlot().Emit(1, 2, 3)
			Expect(emits).To(BeEmpty())
		})
	})

	Context("When modules declare checks and filters", func() {
		It("should keep them in registration order", func() {
			var order []int
			check := func(i int) CallCheck {
				return func(context.Context, *ConnectionState, *Call) error {
					order = append(order, i)
					return nil
				}
			}
			r, err := newRegistry([]Module{
				{CheckCall: check(1)},
				{},
				{CheckCall: check(2), Resources: "client"},
			}, emit)
			Expect(err).NotTo(HaveOccurred())
			for _, c := range r.checks {
				Expect(c(context.TODO(), nil, nil)).To(Succeed())
			}
			Expect(order).To(Equal([]int{1, 2}))
			Expect(r.resources).To(Equal([]string{"client"}))
		})
	})

	Context("HookName", func() {
		It("should capitalize every namespace segment and the event", func() {
			Expect(HookName("", "tick")).To(Equal("onTick"))
			Expect(HookName("chat", "said")).To(Equal("onChatSaid"))
			Expect(HookName("chat.room", "joined")).To(Equal("onChatRoomJoined"))
			Expect(HookName("", heartbeatEvent)).To(Equal("onHeartbeat"))
		})
	})
})

type calculator struct{}

func (c *calculator) Add(a, b float64) float64 { return a + b }

func (c *calculator) Divide(a, b float64) (float64, error) {
	if b == 0 {
		return 0, errors.New("division by zero")
	}
	return a / b, nil
}
