package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"reelup/internal/api"
)

func newProjectsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "List projects and their folders",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, _, err := ctx.requireSession(cmd)
			if err != nil {
				return err
			}
			data, err := sess.ReloadUserData(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, data.Projects)
			}
			if len(data.Projects) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No projects available")
				return nil
			}
			current, currentFolder := sess.ProjectID(), sess.FolderID()
			rows := make([][]string, 0)
			for _, project := range data.Projects {
				marker := ""
				if project.ID == current {
					marker = "*"
				}
				rows = append(rows, []string{marker, project.ID, project.Name, "/", project.RootFolder.ID})
				walkFolders(project.RootFolder.Folders, 1, func(folder api.Folder, depth int) {
					marker := ""
					if folder.ID == currentFolder {
						marker = "*"
					}
					rows = append(rows, []string{marker, "", "", strings.Repeat("  ", depth-1) + folder.Name, folder.ID})
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"", "Project", "Name", "Folder", "Folder ID"},
				rows,
				nil,
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func walkFolders(folders []api.Folder, depth int, visit func(api.Folder, int)) {
	for _, folder := range folders {
		visit(folder, depth)
		walkFolders(folder.Folders, depth+1, visit)
	}
}

func newUseCommand(ctx *commandContext) *cobra.Command {
	var projectID, folderID string
	cmd := &cobra.Command{
		Use:   "use",
		Short: "Select the project and folder uploads go to",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(projectID) == "" && strings.TrimSpace(folderID) == "" {
				return fmt.Errorf("specify --project and/or --folder")
			}
			sess, _, err := ctx.requireSession(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if projectID != "" {
				project, err := sess.FindProject(cmd.Context(), projectID)
				if err != nil {
					return err
				}
				sess.SetProject(project.ID)
				fmt.Fprintf(out, "Project: %s (%s)\n", project.Name, project.ID)
			}
			if folderID != "" {
				folder, err := sess.FindFolder(cmd.Context(), folderID)
				if err != nil {
					return err
				}
				sess.SetFolder(folder.ID)
				fmt.Fprintf(out, "Folder: %s (%s)\n", folder.Name, folder.ID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "Project ID")
	cmd.Flags().StringVar(&folderID, "folder", "", "Folder ID inside the project")
	return cmd
}
