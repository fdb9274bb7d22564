package csr_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvsim/csr"
	"github.com/sarchlab/rvsim/hart"
)

var _ = Describe("Table", func() {
	var (
		h     *hart.Hart
		table *csr.Table
	)

	BeforeEach(func() {
		h = hart.NewHart(
			hart.WithExtensions("IMAFDCSUV"),
			hart.WithFeatures(hart.FeatureMMU|hart.FeaturePMP),
		)
		table = csr.NewTable(hart.DefaultConfig())
	})

	Describe("unpopulated slots", func() {
		It("should fail reads with an illegal access", func() {
			_, err := table.Read(h, 0x123)
			Expect(err).To(MatchError(csr.ErrIllegal))
		})

		It("should fail writes with an illegal access", func() {
			err := table.Write(h, 0x123, 1)
			Expect(err).To(MatchError(csr.ErrIllegal))
		})

		It("should fail read-modify-writes with an illegal access", func() {
			_, err := table.ReadWrite(h, 0x123, 1, 0xFF)
			Expect(err).To(MatchError(csr.ErrIllegal))
		})

		It("should never silently return zero", func() {
			value, err := table.ReadWrite(h, 0x777, 0, 0)
			Expect(err).To(HaveOccurred())
			Expect(value).To(Equal(uint64(0)))
			Expect(table.Defined(0x777)).To(BeFalse())
		})
	})

	Describe("privilege gating", func() {
		It("should reject machine CSRs from user mode", func() {
			h.Priv = hart.PrivU
			_, err := table.Read(h, hart.CSRMstatus)
			Expect(err).To(MatchError(csr.ErrIllegal))
		})

		It("should reject machine CSRs from supervisor mode", func() {
			h.Priv = hart.PrivS
			_, err := table.Read(h, hart.CSRMepc)
			Expect(err).To(MatchError(csr.ErrIllegal))
		})

		It("should allow supervisor CSRs from machine mode", func() {
			_, err := table.Read(h, hart.CSRSstatus)
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("read-only region", func() {
		It("should reject writes to 0xCxx/0xFxx encodings", func() {
			err := table.Write(h, hart.CSRMhartid, 5)
			Expect(err).To(MatchError(csr.ErrIllegal))

			err = table.Write(h, hart.CSRVl, 4)
			Expect(err).To(MatchError(csr.ErrIllegal))
		})

		It("should still allow reads", func() {
			value, err := table.Read(h, hart.CSRMvendorid)
			Expect(err).NotTo(HaveOccurred())
			Expect(value).To(Equal(uint64(0)))
		})
	})

	Describe("predicate gating", func() {
		It("should reject vector CSRs without the V extension", func() {
			plain := hart.NewHart(hart.WithExtensions("IMAFDCSU"))
			_, err := table.Read(plain, hart.CSRVstart)
			Expect(err).To(MatchError(csr.ErrIllegal))
		})

		It("should reject floating-point CSRs without F", func() {
			intOnly := hart.NewHart(hart.WithExtensions("IM"))
			_, err := table.Read(intOnly, hart.CSRFcsr)
			Expect(err).To(MatchError(csr.ErrIllegal))
		})

		It("should reject supervisor CSRs without S", func() {
			noS := hart.NewHart(hart.WithExtensions("IMU"))
			_, err := table.Read(noS, hart.CSRSstatus)
			Expect(err).To(MatchError(csr.ErrIllegal))
		})

		It("should reject satp without an MMU even with S", func() {
			noMMU := hart.NewHart(
				hart.WithExtensions("IMSU"),
				hart.WithFeatures(0),
			)
			_, err := table.Read(noMMU, hart.CSRSatp)
			Expect(err).To(MatchError(csr.ErrIllegal))
		})
	})

	Describe("read-modify-write composition", func() {
		It("should not alter the value under a zero mask", func() {
			Expect(table.Write(h, hart.CSRMscratch, 0xABCD)).To(Succeed())

			old, err := table.ReadWrite(h, hart.CSRMscratch, 0xFFFF_FFFF, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(old).To(Equal(uint64(0xABCD)))

			value, _ := table.Read(h, hart.CSRMscratch)
			Expect(value).To(Equal(uint64(0xABCD)))
		})

		It("should fully replace under an all-ones mask", func() {
			Expect(table.Write(h, hart.CSRMscratch, 0x1)).To(Succeed())

			old, err := table.ReadWrite(h, hart.CSRMscratch, 0x5555, ^uint64(0))
			Expect(err).NotTo(HaveOccurred())
			Expect(old).To(Equal(uint64(0x1)))

			value, _ := table.Read(h, hart.CSRMscratch)
			Expect(value).To(Equal(uint64(0x5555)))
		})

		It("should merge only masked bits", func() {
			Expect(table.Write(h, hart.CSRMscratch, 0xFF00)).To(Succeed())

			_, err := table.ReadWrite(h, hart.CSRMscratch, 0x00FF, 0x000F)
			Expect(err).NotTo(HaveOccurred())

			value, _ := table.Read(h, hart.CSRMscratch)
			Expect(value).To(Equal(uint64(0xFF0F)))
		})
	})

	Describe("floating-point CSRs", func() {
		It("should compose fcsr from fflags and frm", func() {
			Expect(table.Write(h, hart.CSRFflags, 0x1f)).To(Succeed())
			Expect(table.Write(h, hart.CSRFrm, 0x3)).To(Succeed())

			fcsr, err := table.Read(h, hart.CSRFcsr)
			Expect(err).NotTo(HaveOccurred())
			Expect(fcsr).To(Equal(uint64(0x3<<5 | 0x1f)))
		})

		It("should split fcsr writes into the pieces", func() {
			Expect(table.Write(h, hart.CSRFcsr, 0xEA)).To(Succeed())

			fflags, _ := table.Read(h, hart.CSRFflags)
			frm, _ := table.Read(h, hart.CSRFrm)
			Expect(fflags).To(Equal(uint64(0xEA & 0x1f)))
			Expect(frm).To(Equal(uint64(0xEA >> 5)))
		})
	})

	Describe("mstatus", func() {
		It("should only change writable bits", func() {
			Expect(table.Write(h, hart.CSRMstatus, ^uint64(0))).To(Succeed())

			value, _ := table.Read(h, hart.CSRMstatus)
			Expect(value & hart.MstatusMIE).NotTo(BeZero())
			// UXL/SXL are not writable through the CSR.
			Expect(value & hart.MstatusUXL).To(BeZero())
		})

		It("should derive SD from dirty FS", func() {
			Expect(table.Write(h, hart.CSRMstatus, hart.MstatusFS)).To(Succeed())
			value, _ := table.Read(h, hart.CSRMstatus)
			Expect(value & hart.MstatusSD).NotTo(BeZero())
		})
	})

	Describe("supervisor views", func() {
		It("should expose sstatus as a masked view of mstatus", func() {
			Expect(table.Write(h, hart.CSRMstatus,
				hart.MstatusSIE|hart.MstatusMIE)).To(Succeed())

			sstatus, err := table.Read(h, hart.CSRSstatus)
			Expect(err).NotTo(HaveOccurred())
			Expect(sstatus & hart.SstatusSIE).NotTo(BeZero())
			Expect(sstatus & hart.MstatusMIE).To(BeZero())
		})

		It("should write mstatus through sstatus", func() {
			Expect(table.Write(h, hart.CSRSstatus, hart.SstatusSIE)).To(Succeed())
			mstatus, _ := table.Read(h, hart.CSRMstatus)
			Expect(mstatus & hart.MstatusSIE).NotTo(BeZero())
		})

		It("should gate sie and sip on mideleg", func() {
			Expect(table.Write(h, hart.CSRMideleg, hart.MipSSIP)).To(Succeed())
			Expect(table.Write(h, hart.CSRMie,
				hart.MipSSIP|hart.MipSTIP|hart.MipMSIP)).To(Succeed())

			sie, err := table.Read(h, hart.CSRSie)
			Expect(err).NotTo(HaveOccurred())
			Expect(sie).To(Equal(hart.MipSSIP))
		})
	})

	Describe("mip", func() {
		It("should use one atomic read-modify-write", func() {
			old, err := table.ReadWrite(h, hart.CSRMip, hart.MipSSIP, hart.MipSSIP)
			Expect(err).NotTo(HaveOccurred())
			Expect(old).To(Equal(uint64(0)))

			value, _ := table.Read(h, hart.CSRMip)
			Expect(value).To(Equal(hart.MipSSIP))
		})

		It("should refuse to set machine-level bits from software", func() {
			_, err := table.ReadWrite(h, hart.CSRMip, hart.MipMEIP, ^uint64(0))
			Expect(err).NotTo(HaveOccurred())

			value, _ := table.Read(h, hart.CSRMip)
			Expect(value & hart.MipMEIP).To(BeZero())
		})
	})

	Describe("trap setup registers", func() {
		It("should refuse reserved tvec modes", func() {
			Expect(table.Write(h, hart.CSRMtvec, 0x8000_0003)).To(Succeed())
			value, _ := table.Read(h, hart.CSRMtvec)
			Expect(value).To(Equal(uint64(0)))

			Expect(table.Write(h, hart.CSRMtvec, 0x8000_0001)).To(Succeed())
			value, _ = table.Read(h, hart.CSRMtvec)
			Expect(value).To(Equal(uint64(0x8000_0001)))
		})

		It("should align mepc writes", func() {
			Expect(table.Write(h, hart.CSRMepc, 0x1003)).To(Succeed())
			value, _ := table.Read(h, hart.CSRMepc)
			Expect(value).To(Equal(uint64(0x1002)))
		})

		It("should never delegate machine ecalls", func() {
			Expect(table.Write(h, hart.CSRMedeleg, ^uint64(0))).To(Succeed())
			value, _ := table.Read(h, hart.CSRMedeleg)
			Expect(value & (1 << hart.ExcMEcall)).To(BeZero())
		})
	})

	Describe("vector CSRs", func() {
		It("should round-trip vstart, vxsat, and vxrm", func() {
			Expect(table.Write(h, hart.CSRVstart, 7)).To(Succeed())
			Expect(table.Write(h, hart.CSRVxsat, 1)).To(Succeed())
			Expect(table.Write(h, hart.CSRVxrm, 2)).To(Succeed())

			vstart, _ := table.Read(h, hart.CSRVstart)
			vxsat, _ := table.Read(h, hart.CSRVxsat)
			vxrm, _ := table.Read(h, hart.CSRVxrm)
			Expect(vstart).To(Equal(uint64(7)))
			Expect(vxsat).To(Equal(uint64(1)))
			Expect(vxrm).To(Equal(uint64(2)))
		})

		It("should clamp vxsat and vxrm to their widths", func() {
			Expect(table.Write(h, hart.CSRVxsat, 0xFF)).To(Succeed())
			Expect(table.Write(h, hart.CSRVxrm, 0xFF)).To(Succeed())

			vxsat, _ := table.Read(h, hart.CSRVxsat)
			vxrm, _ := table.Read(h, hart.CSRVxrm)
			Expect(vxsat).To(Equal(uint64(1)))
			Expect(vxrm).To(Equal(uint64(3)))
		})

		It("should read vl and vtype set by the decoder", func() {
			h.Vector.Vl = 8
			h.Vector.Vtype = 0x5

			vl, _ := table.Read(h, hart.CSRVl)
			vtype, _ := table.Read(h, hart.CSRVtype)
			Expect(vl).To(Equal(uint64(8)))
			Expect(vtype).To(Equal(uint64(0x5)))
		})
	})

	Describe("table metadata", func() {
		It("should name populated slots", func() {
			Expect(table.Name(hart.CSRMstatus)).To(Equal("mstatus"))
			Expect(table.Name(0x123)).To(Equal(""))
		})
	})
})
