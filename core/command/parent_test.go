package command

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Parent", func() {
	var (
		reload  *recordingCommand
		version *recordingCommand
		parent  *Parent
		sender  *recordingSender
	)

	BeforeEach(func() {
		reload = &recordingCommand{
			data:     Data{Name: "reload", Aliases: []string{"rl"}, Permission: "nookcore.reload", Description: "Reloads the configuration"},
			complete: []string{"all", "commands", "config"},
		}
		version = &recordingCommand{data: Data{Name: "version", Description: "Shows the version"}}
		parent = NewParent(Data{Name: "nookcore", SubCommands: []Command{reload, version}}, Info{Name: "NookCore", ColoredName: "<gold>NookCore</gold>", Version: "1.0.0"})
		sender = newSender()
	})

	It("shows help without arguments", func() {
		parent.Execute(sender, "nk", nil)

		Expect(sender.messages).To(Equal([]string{
			"NookCore - v1.0.0",
			"| /nk help - Shows the help message",
			"| /nk reload - Reloads the configuration",
			"| /nk version - Shows the version",
		}))
	})

	It("shows help for unknown sub-commands and for help itself", func() {
		parent.Execute(sender, "nk", []string{"unknown"})
		Expect(sender.messages).To(HaveLen(4))

		parent.Execute(sender, "nk", []string{"help"})
		Expect(sender.messages).To(HaveLen(8))
	})

	It("runs sub-commands with the remaining arguments", func() {
		parent.Execute(sender, "nk", []string{"version", "extra"})

		Expect(version.calls).To(ConsistOf(call{label: "nk", args: []string{"extra"}}))
		Expect(sender.messages).To(BeEmpty())
	})

	It("resolves aliases", func() {
		sender.perms["nookcore.reload"] = true
		parent.Execute(sender, "nk", []string{"rl"})

		Expect(reload.calls).To(HaveLen(1))
		Expect(reload.calls[0].args).To(BeEmpty())
	})

	It("denies sub-commands without permission", func() {
		parent.Execute(sender, "nk", []string{"reload"})

		Expect(reload.calls).To(BeEmpty())
		Expect(sender.messages).To(Equal([]string{"You don't have permission to execute this sub-command"}))
	})

	Context("tab completion", func() {
		It("lists every sub-command label for the first argument", func() {
			Expect(parent.TabComplete(sender, "nk", []string{""})).To(Equal([]string{"help", "reload", "rl", "version"}))
			Expect(parent.TabComplete(sender, "nk", []string{"re"})).To(HaveLen(4))
		})

		It("delegates deeper arguments", func() {
			Expect(parent.TabComplete(sender, "nk", []string{"reload", "co"})).To(Equal([]string{"commands", "config"}))
			Expect(parent.TabComplete(sender, "nk", []string{"version", ""})).To(BeEmpty())
			Expect(parent.TabComplete(sender, "nk", []string{"missing", ""})).To(BeEmpty())
		})
	})
})

var _ = Describe("SuggestionFilter", func() {
	It("keeps suggestions starting with the message", func() {
		Expect(SuggestionFilter([]string{"enable", "disable", "edit"}, "e")).To(Equal([]string{"enable", "edit"}))
		Expect(SuggestionFilter([]string{"enable"}, "")).To(Equal([]string{"enable"}))
		Expect(SuggestionFilter(nil, "x")).To(BeEmpty())
	})
})
