package acceptance_test

import (
	"os/exec"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("swarm validate", func() {
	Context("with a valid config", func() {
		It("exits with code 0", func() {
			cmd := exec.Command(binaryPath, "validate", "--config", testdataPath("valid.yaml"))
			err := cmd.Run()
			Expect(err).NotTo(HaveOccurred())
		})

		It("prints a success message", func() {
			cmd := exec.Command(binaryPath, "validate", "--config", testdataPath("valid.yaml"))
			output, err := cmd.CombinedOutput()
			Expect(err).NotTo(HaveOccurred())
			Expect(string(output)).To(ContainSubstring("valid"))
		})
	})

	Context("with invalid YAML syntax", func() {
		It("exits with a non-zero code", func() {
			cmd := exec.Command(binaryPath, "validate", "--config", testdataPath("invalid_yaml.yaml"))
			err := cmd.Run()
			Expect(err).To(HaveOccurred())
		})
	})

	Context("with missing required fields", func() {
		It("exits with a non-zero code", func() {
			cmd := exec.Command(binaryPath, "validate", "--config", testdataPath("missing_fields.yaml"))
			err := cmd.Run()
			Expect(err).To(HaveOccurred())
		})

		It("reports each missing field", func() {
			cmd := exec.Command(binaryPath, "validate", "--config", testdataPath("missing_fields.yaml"))
			output, _ := cmd.CombinedOutput()
			out := string(output)
			Expect(out).To(ContainSubstring("llm.api_key is required"))
			Expect(out).To(ContainSubstring("llm.base_url is required"))
			Expect(out).To(ContainSubstring("max_workers must be positive"))
			Expect(out).To(ContainSubstring("api_rate_limit_rpm must be positive"))
		})
	})

	Context("with a nonexistent file", func() {
		It("exits with a non-zero code", func() {
			cmd := exec.Command(binaryPath, "validate", "--config", "/tmp/does-not-exist-swarm.yaml")
			err := cmd.Run()
			Expect(err).To(HaveOccurred())
		})
	})
})
