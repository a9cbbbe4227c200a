package config

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"
)

var _ = Describe("Flags", func() {
	var tmpDir string

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
	})

	It("flag value overrides config file value when set", func() {
		data := "[api]\nlisten = \":5555\"\n"
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())

		v, err := InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		fs := FlagSet{
			FlagAPIListenStandalone: {Name: "listen", Shorthand: "l", ViperKey: "api.listen", Description: "Address for API server to listen on"},
		}

		cmd := &cobra.Command{Use: "test"}
		var listen string
		AddStringFlag(cmd, fs, FlagAPIListenStandalone, &listen)

		// Simulate flag being set by user
		Expect(cmd.Flags().Set("listen", ":7777")).To(Succeed())

		BindRegisteredFlags(v, cmd, fs, []string{FlagAPIListenStandalone})

		Expect(v.GetString("api.listen")).To(Equal(":7777"))
	})

	It("falls through to config when flag not set", func() {
		data := "[api]\nlisten = \":5555\"\n"
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())

		v, err := InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		fs := FlagSet{
			FlagAPIListenStandalone: {Name: "listen", Shorthand: "l", ViperKey: "api.listen", Description: "Address for API server to listen on"},
		}

		cmd := &cobra.Command{Use: "test"}
		var listen string
		AddStringFlag(cmd, fs, FlagAPIListenStandalone, &listen)

		// Do NOT set the flag -- should fall through to config file value
		BindRegisteredFlags(v, cmd, fs, []string{FlagAPIListenStandalone})

		Expect(v.GetString("api.listen")).To(Equal(":5555"))
	})

	It("skips bindings for nonexistent registry keys", func() {
		v, err := InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cmd := &cobra.Command{Use: "test"}

		// "nonexistent" is not in the FlagSet -- should be safely skipped
		BindRegisteredFlags(v, cmd, FlagSet{}, []string{"nonexistent"})

		defaults := NewDefaultConfig()
		Expect(v.GetString("proxy.listen")).To(Equal(defaults.Proxy.Listen))
	})

	It("AddStringFlag pulls name, shorthand, and description from FlagSet", func() {
		fs := FlagSet{
			FlagAPITarget: {Name: "api-target", Shorthand: "a", ViperKey: "client.api_target", Description: "Mnemo API server URL"},
		}

		cmd := &cobra.Command{Use: "test"}
		var target string
		AddStringFlag(cmd, fs, FlagAPITarget, &target)

		f := cmd.Flags().Lookup("api-target")
		Expect(f).NotTo(BeNil())
		Expect(f.Shorthand).To(Equal("a"))
		Expect(f.Usage).To(Equal("Mnemo API server URL"))

		defaults := NewDefaultConfig()
		Expect(f.DefValue).To(Equal(defaults.Client.APITarget))
	})

	It("AddUintFlag pulls defaults from the viper key", func() {
		fs := FlagSet{
			FlagWorkers: {Name: "workers", ViperKey: "proxy.workers", Description: "Number of capture workers"},
		}

		cmd := &cobra.Command{Use: "test"}
		var workers uint
		AddUintFlag(cmd, fs, FlagWorkers, &workers)

		f := cmd.Flags().Lookup("workers")
		Expect(f).NotTo(BeNil())
		Expect(f.Usage).To(Equal("Number of capture workers"))
		Expect(f.DefValue).To(Equal("3"))
	})
})
