package signal_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvsim/csr"
	"github.com/sarchlab/rvsim/hart"
	"github.com/sarchlab/rvsim/mem"
	"github.com/sarchlab/rvsim/signal"
)

const (
	stackBase = uint64(0x7000_0000)
	stackSize = uint64(64 * 1024)
	stackTop  = stackBase + stackSize

	handlerAddr = uint64(0x0040_1000)
)

func newDelivery(opts ...hart.Option) (*hart.Hart, *mem.Memory, *signal.Delivery) {
	h := hart.NewHart(opts...)
	h.Priv = hart.PrivU
	h.X[2] = stackTop

	m := mem.NewMemory()
	m.Map(stackBase, stackSize)

	table := csr.NewTable(hart.DefaultConfig())
	return h, m, signal.NewDelivery(h, m, table)
}

var _ = Describe("Layout", func() {
	It("should match the fixed ABI sizes at VLEN=128", func() {
		l := signal.NewLayout(128)
		Expect(l.VRegBytes()).To(Equal(16))
		Expect(l.SigcontextSize()).To(Equal(1344))
		Expect(l.UcontextSize()).To(Equal(1520))
		Expect(l.FrameSize()).To(Equal(1664))
	})

	It("should scale the vector block with VLEN", func() {
		l := signal.NewLayout(256)
		Expect(l.VRegBytes()).To(Equal(32))
		// 32 registers of 32 bytes push the trailing CSRs out by
		// 512 bytes relative to VLEN=128.
		Expect(l.VCSROffset(0)).To(Equal(784 + 32*32))
	})

	It("should keep the machine context 16-byte aligned", func() {
		for _, vlen := range []uint32{64, 128, 256} {
			l := signal.NewLayout(vlen)
			Expect(l.SigcontextSize() % 16).To(BeZero())
			Expect(l.FrameSize() % 16).To(BeZero())
		}
	})
})

var _ = Describe("Delivery", func() {
	var (
		h *hart.Hart
		m *mem.Memory
		d *signal.Delivery
	)

	BeforeEach(func() {
		h, m, d = newDelivery(
			hart.WithExtensions("IMAFDCSU"),
			hart.WithVectorExtension(128),
		)
		Expect(d.SetAction(signal.SIGUSR1, signal.Action{
			Handler: handlerAddr,
			Flags:   signal.SASiginfo,
		})).To(Succeed())
	})

	Describe("frame setup", func() {
		var frameAddr uint64

		JustBeforeEach(func() {
			d.Deliver(signal.SIGUSR1, &signal.SigInfo{
				Signo: signal.SIGUSR1,
				Code:  signal.SiUser,
				PID:   42,
			})
			frameAddr = h.X[2]
		})

		It("should place the frame below the old stack pointer", func() {
			Expect(frameAddr).To(Equal((stackTop - uint64(d.Layout().FrameSize())) &^ 3))
		})

		It("should pass handler arguments in the ABI registers", func() {
			Expect(h.PC).To(Equal(handlerAddr))
			Expect(h.X[10]).To(Equal(uint64(signal.SIGUSR1)))
			Expect(h.X[11]).To(Equal(frameAddr + 8))
			Expect(h.X[12]).To(Equal(frameAddr + 144))
			Expect(h.X[1]).To(Equal(frameAddr))
		})

		It("should install the sigreturn trampoline", func() {
			Expect(m.Read32(frameAddr)).To(Equal(uint32(0x08b00893)))
			Expect(m.Read32(frameAddr + 4)).To(Equal(uint32(0x00000073)))
		})

		It("should encode the siginfo block", func() {
			info, err := d.FrameInfo(frameAddr)
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Signo).To(Equal(int32(signal.SIGUSR1)))
			Expect(info.Code).To(Equal(signal.SiUser))
		})

		It("should save the pre-delivery mask in the ucontext", func() {
			Expect(m.Read64(frameAddr + 144 + 40)).To(Equal(uint64(0)))
		})

		It("should save the interrupted pc in the machine context", func() {
			// 144 to the ucontext, 176 more to the mcontext, pc first.
			Expect(m.Read64(frameAddr + 144 + 176)).To(Equal(uint64(0x1000)))
		})
	})

	Describe("signal masking", func() {
		It("should block the handler mask plus the signal itself", func() {
			Expect(d.SetAction(signal.SIGUSR1, signal.Action{
				Handler: handlerAddr,
				Mask:    signal.SigSet(0).Add(signal.SIGALRM),
			})).To(Succeed())

			d.Deliver(signal.SIGUSR1, nil)

			Expect(d.Blocked().Has(signal.SIGUSR1)).To(BeTrue())
			Expect(d.Blocked().Has(signal.SIGALRM)).To(BeTrue())
		})

		It("should restore the pre-delivery mask on sigreturn", func() {
			before := signal.SigSet(0).Add(signal.SIGHUP)
			d.SetBlocked(before)

			d.Deliver(signal.SIGUSR1, nil)
			Expect(d.Blocked()).NotTo(Equal(before))

			Expect(d.RTSigreturn()).To(Equal(signal.ESigreturn))
			Expect(d.Blocked()).To(Equal(before))
		})

		It("should restore the mask even if the handler changed it", func() {
			before := signal.SigSet(0).Add(signal.SIGINT)
			d.SetBlocked(before)

			d.Deliver(signal.SIGUSR1, nil)
			d.SetBlocked(signal.SigSet(0).Add(signal.SIGTERM))

			d.RTSigreturn()
			Expect(d.Blocked()).To(Equal(before))
		})
	})

	Describe("state round trip", func() {
		scramble := func() {
			for i := 1; i < 32; i++ {
				h.X[i] = 0xBAD0_0000 + uint64(i)
			}
			for i := 0; i < 32; i++ {
				h.F[i] = 0xF00D_0000 + uint64(i)
			}
			h.SetFcsr(0)
			h.PC = 0xDEAD_0000
		}

		It("should restore integer and floating-point state", func() {
			for i := 1; i < 32; i++ {
				h.X[i] = uint64(i) * 0x1111
			}
			for i := 0; i < 32; i++ {
				h.F[i] = uint64(i) * 0x2222
			}
			h.SetFcsr(0xE3)
			h.X[2] = stackTop
			h.PC = 0x1_0000

			d.Deliver(signal.SIGUSR1, nil)
			frameAddr := h.X[2]
			scramble()
			h.X[2] = frameAddr

			Expect(d.RTSigreturn()).To(Equal(signal.ESigreturn))

			Expect(h.PC).To(Equal(uint64(0x1_0000)))
			Expect(h.X[2]).To(Equal(stackTop))
			for i := 3; i < 32; i++ {
				Expect(h.X[i]).To(Equal(uint64(i) * 0x1111))
			}
			for i := 0; i < 32; i++ {
				Expect(h.F[i]).To(Equal(uint64(i) * 0x2222))
			}
			Expect(h.Fcsr()).To(Equal(uint64(0xE3)))
		})

		It("should restore vector state including an illegal vtype", func() {
			vs := h.Vector
			for reg := 0; reg < 32; reg++ {
				for w := 0; w < vs.WordsPerReg(); w++ {
					vs.SetRegWord(reg, w, uint64(reg)<<8|uint64(w))
				}
			}
			vs.Vstart = 3
			vs.Vxsat = 1
			vs.Vxrm = 2
			vs.Vl = 4
			vs.Vtype = hart.VtypeVill | 0x5

			d.Deliver(signal.SIGUSR1, nil)
			frameAddr := h.X[2]
			vs.Reset()
			h.X[2] = frameAddr

			Expect(d.RTSigreturn()).To(Equal(signal.ESigreturn))

			for reg := 0; reg < 32; reg++ {
				for w := 0; w < vs.WordsPerReg(); w++ {
					Expect(vs.RegWord(reg, w)).To(Equal(uint64(reg)<<8 | uint64(w)))
				}
			}
			Expect(vs.Vstart).To(Equal(uint64(3)))
			Expect(vs.Vxsat).To(Equal(uint64(1)))
			Expect(vs.Vxrm).To(Equal(uint64(2)))
			Expect(vs.Vl).To(Equal(uint64(4)))
			Expect(vs.Vtype).To(Equal(hart.VtypeVill | 0x5))
		})

		It("should round-trip without the vector extension", func() {
			h, _, d = newDelivery(hart.WithExtensions("IMAFDCSU"))
			Expect(d.SetAction(signal.SIGUSR1, signal.Action{
				Handler: handlerAddr,
			})).To(Succeed())
			h.PC = 0x2_0000
			h.X[5] = 0x55

			d.Deliver(signal.SIGUSR1, nil)
			h.X[5] = 0

			Expect(d.RTSigreturn()).To(Equal(signal.ESigreturn))
			Expect(h.PC).To(Equal(uint64(0x2_0000)))
			Expect(h.X[5]).To(Equal(uint64(0x55)))
		})
	})

	Describe("alternate stack", func() {
		const altBase = uint64(0x7100_0000)
		const altSize = uint64(8 * 1024)

		BeforeEach(func() {
			m.Map(altBase, altSize)
			Expect(d.SetAltStack(signal.StackT{
				SP:   altBase,
				Size: altSize,
			})).To(Succeed())
		})

		It("should reject an undersized stack", func() {
			Expect(d.SetAltStack(signal.StackT{
				SP:   altBase,
				Size: 100,
			})).NotTo(Succeed())
		})

		It("should switch only when the action asks for it", func() {
			d.Deliver(signal.SIGUSR1, nil)
			Expect(h.X[2] >= stackBase && h.X[2] < stackTop).To(BeTrue())
		})

		It("should switch to the alternate stack with SA_ONSTACK", func() {
			Expect(d.SetAction(signal.SIGUSR1, signal.Action{
				Handler: handlerAddr,
				Flags:   signal.SAOnStack,
			})).To(Succeed())

			d.Deliver(signal.SIGUSR1, nil)
			Expect(h.X[2] >= altBase && h.X[2] < altBase+altSize).To(BeTrue())
		})

		It("should not switch again when already on the alternate stack", func() {
			Expect(d.SetAction(signal.SIGUSR1, signal.Action{
				Handler: handlerAddr,
				Flags:   signal.SAOnStack,
			})).To(Succeed())
			h.X[2] = altBase + altSize/2

			d.Deliver(signal.SIGUSR1, nil)
			Expect(h.X[2]).To(Equal(
				(altBase + altSize/2 - uint64(d.Layout().FrameSize())) &^ 3))
		})

		It("should record the stack descriptor in the frame", func() {
			Expect(d.SetAction(signal.SIGUSR1, signal.Action{
				Handler: handlerAddr,
				Flags:   signal.SAOnStack,
			})).To(Succeed())

			d.Deliver(signal.SIGUSR1, nil)
			frameAddr := h.X[2]
			Expect(m.Read64(frameAddr + 144 + 16)).To(Equal(altBase))
			Expect(m.Read64(frameAddr + 144 + 32)).To(Equal(altSize))
		})

		Context("when a SIGSEGV frame overflows the alternate stack", func() {
			BeforeEach(func() {
				Expect(d.SetAction(signal.SIGSEGV, signal.Action{
					Handler: handlerAddr,
					Flags:   signal.SAOnStack,
				})).To(Succeed())

				// Already on the altstack with too little room left.
				h.X[2] = altBase + 64
				d.Deliver(signal.SIGSEGV, nil)
			})

			It("should write nothing to guest memory", func() {
				for addr := altBase; addr < altBase+altSize; addr += 8 {
					Expect(m.Read64(addr)).To(BeZero())
				}
			})

			It("should terminate with a default disposition, not re-enter the handler", func() {
				terminated, sig := d.Terminated()
				Expect(terminated).To(BeTrue())
				Expect(sig).To(Equal(signal.SIGSEGV))
				Expect(d.GetAction(signal.SIGSEGV).Handler).
					To(Equal(signal.HandlerDefault))
				Expect(h.PC).NotTo(Equal(handlerAddr))
			})
		})
	})

	Describe("bad frames", func() {
		It("should force a fault on an unwritable frame", func() {
			h.X[2] = 0x100 // unmapped

			d.Deliver(signal.SIGUSR1, nil)

			terminated, sig := d.Terminated()
			Expect(terminated).To(BeTrue())
			Expect(sig).To(Equal(signal.SIGSEGV))
		})

		It("should deliver to a registered SIGSEGV handler instead", func() {
			Expect(d.SetAction(signal.SIGSEGV, signal.Action{
				Handler: handlerAddr + 0x100,
			})).To(Succeed())
			h.X[2] = 0x100

			d.Deliver(signal.SIGUSR1, nil)

			// The fault was redirected to the SIGSEGV handler on the
			// still-unmapped stack; its own frame fails too, and the
			// second failure resets the handler and terminates.
			terminated, sig := d.Terminated()
			Expect(terminated).To(BeTrue())
			Expect(sig).To(Equal(signal.SIGSEGV))
			Expect(d.GetAction(signal.SIGSEGV).Handler).
				To(Equal(signal.HandlerDefault))
		})

		It("should force a fault on an unreadable sigreturn frame", func() {
			h.X[2] = 0x100

			Expect(d.RTSigreturn()).To(Equal(int64(0)))

			terminated, sig := d.Terminated()
			Expect(terminated).To(BeTrue())
			Expect(sig).To(Equal(signal.SIGSEGV))
		})
	})
})
