package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/skillbase/internal/skills"
)

func skillsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skills",
		Short: "List and inspect skills",
	}
	cmd.AddCommand(skillsListCmd())
	cmd.AddCommand(skillsShowCmd())
	return cmd
}

func skillsListCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all active skills",
		Run: func(cmd *cobra.Command, args []string) {
			loader := loadSkillsLoader()
			all, err := loader.ListActive(context.Background())
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}

			if jsonOutput {
				data, _ := json.MarshalIndent(all, "", "  ")
				fmt.Println(string(data))
				return
			}

			if len(all) == 0 {
				fmt.Println("No skills found.")
				return
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "ID\tCATEGORY\tDESCRIPTION\n")
			for _, s := range all {
				desc := s.Description
				if len(desc) > 60 {
					desc = desc[:57] + "..."
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", s.ID, s.Category, desc)
			}
			tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func skillsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [id]",
		Short: "Show details and content of a skill",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			loader := loadSkillsLoader()
			skill, err := loader.Get(context.Background(), args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Skill not found: %s\n", args[0])
				os.Exit(1)
			}
			fmt.Printf("ID:          %s\n", skill.ID)
			fmt.Printf("Name:        %s\n", skill.Name)
			fmt.Printf("Description: %s\n", skill.Description)
			fmt.Printf("Category:    %s\n", skill.Category)
			fmt.Printf("Keywords:    %v\n", skill.Keywords)
			fmt.Printf("Active:      %v\n", skill.Active)
			fmt.Println()
			fmt.Println("--- Content ---")
			fmt.Println(skill.Content)
		},
	}
}

func loadSkillsLoader() *skills.Loader {
	cfg := loadConfig()
	return skills.NewLoader(cfg.Skills.Dirs...)
}
