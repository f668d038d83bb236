package acceptance_test

import (
	"os/exec"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("swarm cli surface", func() {
	It("lists the user-facing subcommands and hides the internal worker command", func() {
		cmd := exec.Command(binaryPath, "--help")
		output, err := cmd.CombinedOutput()
		Expect(err).NotTo(HaveOccurred())
		out := string(output)

		for _, name := range []string{"run", "status", "reset", "viz", "logs", "validate", "version"} {
			Expect(out).To(ContainSubstring(name))
		}
		Expect(out).NotTo(ContainSubstring("claim loop"))
	})

	It("prints the version string", func() {
		cmd := exec.Command(binaryPath, "version")
		output, err := cmd.CombinedOutput()
		Expect(err).NotTo(HaveOccurred())
		Expect(string(output)).To(ContainSubstring("swarm"))
	})

	It("refuses to start a worker without an id", func() {
		cmd := exec.Command(binaryPath, "worker")
		err := cmd.Run()
		Expect(err).To(HaveOccurred())
	})

	It("refuses an unknown task id for logs", func() {
		dir := newWorkspace()
		cfgPath := writeConfig(dir)

		cmd := exec.Command(binaryPath, "logs", "--config", cfgPath, "task-does-not-exist")
		err := cmd.Run()
		Expect(err).To(HaveOccurred())
	})
})
