package acceptance_test

import (
	"os/exec"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("swarm status", func() {
	It("reports a zeroed summary against a fresh workspace", func() {
		dir := newWorkspace()
		cfgPath := writeConfig(dir)

		cmd := exec.Command(binaryPath, "status", "--config", cfgPath)
		output, err := cmd.CombinedOutput()
		Expect(err).NotTo(HaveOccurred())
		Expect(string(output)).To(ContainSubstring("total: 0"))
	})

	It("lists every seeded task by title", func() {
		dir := newWorkspace()
		cfgPath := writeConfig(dir)
		seedQueue(dir)

		cmd := exec.Command(binaryPath, "status", "--config", cfgPath)
		output, err := cmd.CombinedOutput()
		Expect(err).NotTo(HaveOccurred())
		out := string(output)
		Expect(out).To(ContainSubstring("total: 2"))
		Expect(out).To(ContainSubstring("scaffold the project layout"))
		Expect(out).To(ContainSubstring("add the HTTP handler"))
	})
})

var _ = Describe("swarm reset", func() {
	It("clears every seeded task from the queue", func() {
		dir := newWorkspace()
		cfgPath := writeConfig(dir)
		seedQueue(dir)

		resetCmd := exec.Command(binaryPath, "reset", "--config", cfgPath)
		resetOutput, err := resetCmd.CombinedOutput()
		Expect(err).NotTo(HaveOccurred())
		Expect(string(resetOutput)).To(ContainSubstring("queue cleared"))

		statusCmd := exec.Command(binaryPath, "status", "--config", cfgPath)
		statusOutput, err := statusCmd.CombinedOutput()
		Expect(err).NotTo(HaveOccurred())
		Expect(string(statusOutput)).To(ContainSubstring("total: 0"))
	})
})

var _ = Describe("swarm viz", func() {
	It("prints the dependent task nested under its root", func() {
		dir := newWorkspace()
		cfgPath := writeConfig(dir)
		seedQueue(dir)

		cmd := exec.Command(binaryPath, "viz", "--config", cfgPath)
		output, err := cmd.CombinedOutput()
		Expect(err).NotTo(HaveOccurred())
		out := string(output)
		Expect(out).To(ContainSubstring("scaffold the project layout"))
		Expect(out).To(ContainSubstring("└── "))
		Expect(out).To(ContainSubstring("add the HTTP handler"))
	})
})
