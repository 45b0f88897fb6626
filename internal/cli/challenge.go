package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newChallengeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "challenge",
		Short: "Challenge commands",
	}

	cmd.AddCommand(newChallengeSendCmd())
	cmd.AddCommand(newChallengeListCmd("pending", "List challenges waiting for your answer", "/api/v1/challenges/pending"))
	cmd.AddCommand(newChallengeListCmd("history", "List every challenge you sent or received", "/api/v1/challenges/history"))
	cmd.AddCommand(newChallengeResolveCmd("accept", "Accept a challenge and start a game"))
	cmd.AddCommand(newChallengeResolveCmd("decline", "Decline a challenge"))

	return cmd
}

func newChallengeSendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <user-id>",
		Short: "Challenge another user to a game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]string{"challengedId": args[0]}
			var result Challenge

			if err := client.Post("/api/v1/challenges", req, &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}
}

func newChallengeListCmd(use, short, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			var result ChallengeList

			if err := client.Get(path, &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}
}

func newChallengeResolveCmd(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <challenge-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result Challenge

			if err := client.Put(fmt.Sprintf("/api/v1/challenges/%s/%s", args[0], action), nil, &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}
}
