package config

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Config", func() {
	Describe("NewDefaultConfig", func() {
		It("fills every section with sane defaults", func() {
			cfg := NewDefaultConfig()

			Expect(cfg.Version).To(Equal(CurrentV))
			Expect(cfg.Proxy.Upstream).To(Equal("https://api.anthropic.com"))
			Expect(cfg.Proxy.Listen).To(Equal(":8080"))
			Expect(cfg.Proxy.Workers).To(Equal(uint(3)))
			Expect(cfg.Proxy.Queue).To(Equal(uint(256)))
			Expect(cfg.API.Listen).To(Equal(":8081"))
			Expect(cfg.Client.ProxyTarget).To(Equal("http://localhost:8080"))
			Expect(cfg.Client.APITarget).To(Equal("http://localhost:8081"))
			Expect(cfg.Memory.Provider).To(Equal("local"))
			Expect(cfg.Memory.UserID).To(Equal("mnemo"))
			Expect(cfg.Reflection.Enabled).To(BeTrue())
			Expect(cfg.Reflection.Window).To(Equal(5))
			Expect(cfg.Reflection.Threshold).To(Equal(5))
			Expect(cfg.Eventstream.Provider).To(Equal("none"))
			Expect(cfg.Eventstream.Topic).To(Equal("mnemo.turns"))
		})
	})

	Describe("ParseConfigTOML", func() {
		It("parses sectioned TOML", func() {
			data := []byte(`
[proxy]
upstream = "http://localhost:9999"
listen = ":7070"

[memory]
provider = "sqlite"
sqlite_path = "/tmp/memories.db"

[eventstream]
provider = "kafka"
brokers = ["localhost:9092", "localhost:9093"]
`)

			cfg, err := ParseConfigTOML(data)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Proxy.Upstream).To(Equal("http://localhost:9999"))
			Expect(cfg.Proxy.Listen).To(Equal(":7070"))
			Expect(cfg.Memory.Provider).To(Equal("sqlite"))
			Expect(cfg.Memory.SQLitePath).To(Equal("/tmp/memories.db"))
			Expect(cfg.Eventstream.Provider).To(Equal("kafka"))
			Expect(cfg.Eventstream.Brokers).To(HaveLen(2))
		})

		It("rejects unsupported versions", func() {
			_, err := ParseConfigTOML([]byte("version = 99\n"))
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("unsupported config version"))
		})

		It("rejects malformed TOML", func() {
			_, err := ParseConfigTOML([]byte("[[[not toml"))
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Configer", func() {
		var cfger *Configer

		BeforeEach(func() {
			var err error
			cfger, err = NewConfiger(GinkgoT().TempDir())
			Expect(err).NotTo(HaveOccurred())
		})

		It("returns defaults when no config file exists", func() {
			cfg, err := cfger.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Proxy.Listen).To(Equal(":8080"))
		})

		It("round-trips a config through save and load", func() {
			cfg := NewDefaultConfig()
			cfg.Proxy.Upstream = "http://localhost:4242"
			cfg.Capture.ExcludedModels = []string{"claude-3-haiku"}

			Expect(cfger.SaveConfig(cfg)).To(Succeed())

			loaded, err := cfger.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.Proxy.Upstream).To(Equal("http://localhost:4242"))
			Expect(loaded.Capture.ExcludedModels).To(Equal([]string{"claude-3-haiku"}))

			// Untouched fields still pick up defaults.
			Expect(loaded.API.Listen).To(Equal(":8081"))
		})

		It("refuses to save a nil config", func() {
			Expect(cfger.SaveConfig(nil)).To(HaveOccurred())
		})

		Describe("SetConfigValue and GetConfigValue", func() {
			It("sets and gets string keys", func() {
				Expect(cfger.SetConfigValue("proxy.listen", ":9090")).To(Succeed())

				value, err := cfger.GetConfigValue("proxy.listen")
				Expect(err).NotTo(HaveOccurred())
				Expect(value).To(Equal(":9090"))
			})

			It("sets and gets numeric keys", func() {
				Expect(cfger.SetConfigValue("reflection.threshold", "10")).To(Succeed())

				value, err := cfger.GetConfigValue("reflection.threshold")
				Expect(err).NotTo(HaveOccurred())
				Expect(value).To(Equal("10"))
			})

			It("sets and gets boolean keys", func() {
				Expect(cfger.SetConfigValue("reflection.enabled", "false")).To(Succeed())

				value, err := cfger.GetConfigValue("reflection.enabled")
				Expect(err).NotTo(HaveOccurred())
				Expect(value).To(Equal("false"))
			})

			It("parses comma-separated list keys", func() {
				Expect(cfger.SetConfigValue("eventstream.brokers", "a:9092, b:9092")).To(Succeed())

				cfg, err := cfger.LoadConfig()
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Eventstream.Brokers).To(Equal([]string{"a:9092", "b:9092"}))
			})

			It("rejects unknown keys", func() {
				Expect(cfger.SetConfigValue("nope.nope", "x")).To(HaveOccurred())

				_, err := cfger.GetConfigValue("nope.nope")
				Expect(err).To(HaveOccurred())
			})

			It("rejects non-numeric values for numeric keys", func() {
				Expect(cfger.SetConfigValue("proxy.workers", "many")).To(HaveOccurred())
			})
		})
	})

	Describe("ValidConfigKeys", func() {
		It("covers every registered key exactly once", func() {
			keys := ValidConfigKeys()
			Expect(keys).To(HaveLen(len(configKeys)))

			seen := map[string]bool{}
			for _, k := range keys {
				Expect(seen[k]).To(BeFalse(), "duplicate key %s", k)
				seen[k] = true
				Expect(IsValidConfigKey(k)).To(BeTrue())
			}
		})
	})

	Describe("PresetConfig", func() {
		It("returns the anthropic preset", func() {
			cfg, err := PresetConfig("anthropic")
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Proxy.Upstream).To(Equal("https://api.anthropic.com"))
		})

		It("returns the openai preset", func() {
			cfg, err := PresetConfig("OpenAI")
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Proxy.Upstream).To(Equal("https://api.openai.com"))
		})

		It("rejects unknown presets", func() {
			_, err := PresetConfig("bedrock")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("InitViper", func() {
		It("applies precedence: file over defaults, env over file", func() {
			dir := GinkgoT().TempDir()
			content := []byte("[proxy]\nlisten = \":7070\"\nupstream = \"http://file-upstream\"\n")
			Expect(os.WriteFile(filepath.Join(dir, "config.toml"), content, 0o600)).To(Succeed())

			GinkgoT().Setenv("MNEMO_PROXY_UPSTREAM", "http://env-upstream")

			v, err := InitViper(dir)
			Expect(err).NotTo(HaveOccurred())

			Expect(v.GetString("proxy.listen")).To(Equal(":7070"))
			Expect(v.GetString("proxy.upstream")).To(Equal("http://env-upstream"))
			Expect(v.GetString("api.listen")).To(Equal(":8081"))
		})
	})
})
