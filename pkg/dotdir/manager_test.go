package dotdir

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Manager", func() {
	var m *Manager

	BeforeEach(func() {
		m = NewManager()
	})

	Context("with an override directory", func() {
		It("uses the override and creates it", func() {
			override := filepath.Join(GinkgoT().TempDir(), "custom-dir")

			target, err := m.Target(override)
			Expect(err).NotTo(HaveOccurred())
			Expect(target).To(HaveSuffix("custom-dir"))

			info, err := os.Stat(target)
			Expect(err).NotTo(HaveOccurred())
			Expect(info.IsDir()).To(BeTrue())
		})

		It("returns an absolute path", func() {
			override := filepath.Join(GinkgoT().TempDir(), "rel")

			target, err := m.Target(override)
			Expect(err).NotTo(HaveOccurred())
			Expect(filepath.IsAbs(target)).To(BeTrue())
		})
	})

	Context("with a local .mnemo directory present", func() {
		var originalWd string

		BeforeEach(func() {
			var err error
			originalWd, err = os.Getwd()
			Expect(err).NotTo(HaveOccurred())

			tmp := GinkgoT().TempDir()
			Expect(os.Mkdir(filepath.Join(tmp, ".mnemo"), 0o755)).To(Succeed())
			Expect(os.Chdir(tmp)).To(Succeed())
		})

		AfterEach(func() {
			Expect(os.Chdir(originalWd)).To(Succeed())
		})

		It("prefers the local directory over the home directory", func() {
			target, err := m.Target("")
			Expect(err).NotTo(HaveOccurred())
			Expect(target).To(HaveSuffix(".mnemo"))

			cwd, err := os.Getwd()
			Expect(err).NotTo(HaveOccurred())
			expected, err := filepath.Abs(filepath.Join(cwd, ".mnemo"))
			Expect(err).NotTo(HaveOccurred())
			Expect(target).To(Equal(expected))
		})
	})
})
