package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taskflow/internal/app"
	"taskflow/internal/config"
	"taskflow/internal/db"
	"taskflow/internal/domain"
	"taskflow/internal/engine"
	"taskflow/internal/logging"
	"taskflow/internal/migrate"
	"taskflow/internal/repo"
	"taskflow/internal/server"
	"taskflow/internal/storage"
)

var rootCmd = &cobra.Command{
	Use:           "tf",
	Short:         "taskflow is a project and task collaboration backend",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags(rootCmd)

	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(actorCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(logCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TASKFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	cmd.PersistentFlags().Bool("json", false, "print JSON instead of tables")
	cmd.PersistentFlags().String("actor-id", "", "acting identity (actor id or email)")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "verbose logging")
	_ = viper.BindPFlag("workspace", cmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", cmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", cmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("verbose", cmd.PersistentFlags().Lookup("verbose"))
}

// withEngine opens the workspace database, applies migrations and hands
// a ready engine to fn. The database is closed when fn returns.
func withEngine(ctx context.Context, fn func(e engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	sqlDB, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	if err := migrate.Migrate(sqlDB); err != nil {
		return err
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	store := storage.NewDisk(filepath.Join(workspace, ".taskflow", cfg.Uploads.Dir))
	return fn(engine.New(sqlDB, cfg, store))
}

func withRepo(ctx context.Context, fn func(r repo.Repo) error) error {
	return withEngine(ctx, func(e engine.Engine) error {
		return fn(e.Repo)
	})
}

// cliActor resolves --actor-id into a full actor with recorded roles.
func cliActor(ctx context.Context, e engine.Engine) (domain.Actor, error) {
	return app.ResolveActor(ctx, e, viper.GetString("actor-id"))
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// printJSONOrTable prints JSON when --json is set, otherwise calls the
// table renderer.
func printJSONOrTable(v any, render func()) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	render()
	return nil
}

// ---- project ----

func projectCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "project", Short: "manage projects"}
	cmd.AddCommand(projectCreateCmd())
	cmd.AddCommand(projectListCmd())
	cmd.AddCommand(projectPendingCmd())
	cmd.AddCommand(projectShowCmd())
	cmd.AddCommand(projectUpdateCmd())
	cmd.AddCommand(projectApproveCmd())
	cmd.AddCommand(projectDeleteCmd())
	cmd.AddCommand(memberCmd())
	return cmd
}

func projectCreateCmd() *cobra.Command {
	var name, description string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "create a project (starts in the pending queue)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(e engine.Engine) error {
				actor, err := cliActor(cmd.Context(), e)
				if err != nil {
					return err
				}
				p, err := e.CreateProject(cmd.Context(), actor, name, description)
				if err != nil {
					return err
				}
				return printJSON(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&description, "description", "", "project description")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list projects visible to the acting identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(e engine.Engine) error {
				actor, err := cliActor(cmd.Context(), e)
				if err != nil {
					return err
				}
				projects, err := e.ListProjects(cmd.Context(), actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(projects, func() {
					renderProjects(projects)
				})
			})
		},
	}
}

func projectPendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "list the approval queue (admin only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(e engine.Engine) error {
				actor, err := cliActor(cmd.Context(), e)
				if err != nil {
					return err
				}
				projects, err := e.ListPendingProjects(cmd.Context(), actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(projects, func() {
					renderProjects(projects)
				})
			})
		},
	}
}

func renderProjects(projects []domain.Project) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Name", "Owner", "Approved", "Created"})
	for _, p := range projects {
		tw.AppendRow(table.Row{p.ID, p.Name, p.OwnerID, p.IsApproved, p.CreatedAt})
	}
	tw.Render()
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <project-id>",
		Short: "show one project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(e engine.Engine) error {
				actor, err := cliActor(cmd.Context(), e)
				if err != nil {
					return err
				}
				p, err := e.GetProject(cmd.Context(), actor, args[0])
				if err != nil {
					return err
				}
				return printJSON(p)
			})
		},
	}
}

func projectUpdateCmd() *cobra.Command {
	var name, description string
	cmd := &cobra.Command{
		Use:   "update <project-id>",
		Short: "update project fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(e engine.Engine) error {
				actor, err := cliActor(cmd.Context(), e)
				if err != nil {
					return err
				}
				var namePtr, descPtr *string
				if cmd.Flags().Changed("name") {
					namePtr = &name
				}
				if cmd.Flags().Changed("description") {
					descPtr = &description
				}
				p, err := e.UpdateProject(cmd.Context(), actor, args[0], namePtr, descPtr)
				if err != nil {
					return err
				}
				return printJSON(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	return cmd
}

func projectApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <project-id>",
		Short: "approve a pending project (admin only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(e engine.Engine) error {
				actor, err := cliActor(cmd.Context(), e)
				if err != nil {
					return err
				}
				p, err := e.ApproveProject(cmd.Context(), actor, args[0])
				if err != nil {
					return err
				}
				return printJSON(p)
			})
		},
	}
}

func projectDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <project-id>",
		Short: "delete a project and its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(e engine.Engine) error {
				actor, err := cliActor(cmd.Context(), e)
				if err != nil {
					return err
				}
				if err := e.DeleteProject(cmd.Context(), actor, args[0]); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
}

// ---- project member ----

func memberCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "member", Short: "manage project members"}
	cmd.AddCommand(memberAddCmd())
	cmd.AddCommand(memberRemoveCmd())
	cmd.AddCommand(memberListCmd())
	cmd.AddCommand(memberAvailableCmd())
	return cmd
}

func memberAddCmd() *cobra.Command {
	var actorRef string
	cmd := &cobra.Command{
		Use:   "add <project-id>",
		Short: "add an actor to a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(e engine.Engine) error {
				actor, err := cliActor(cmd.Context(), e)
				if err != nil {
					return err
				}
				added, err := e.AddMember(cmd.Context(), actor, args[0], actorRef)
				if err != nil {
					return err
				}
				if !added {
					return errors.New("actor not added: project unapproved or already a member")
				}
				fmt.Println("added", actorRef)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actorRef, "actor", "", "actor id or email")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func memberRemoveCmd() *cobra.Command {
	var actorRef string
	cmd := &cobra.Command{
		Use:   "remove <project-id>",
		Short: "remove an actor from a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(e engine.Engine) error {
				actor, err := cliActor(cmd.Context(), e)
				if err != nil {
					return err
				}
				removed, err := e.RemoveMember(cmd.Context(), actor, args[0], actorRef)
				if err != nil {
					return err
				}
				if !removed {
					return errors.New("actor is not a member")
				}
				fmt.Println("removed", actorRef)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actorRef, "actor", "", "actor id or email")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func memberListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <project-id>",
		Short: "list project members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(e engine.Engine) error {
				actor, err := cliActor(cmd.Context(), e)
				if err != nil {
					return err
				}
				members, err := e.ListMembers(cmd.Context(), actor, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(members, func() {
					tw := table.NewWriter()
					tw.SetOutputMirror(os.Stdout)
					tw.AppendHeader(table.Row{"Actor", "Email", "Name", "Joined"})
					for _, m := range members {
						tw.AppendRow(table.Row{m.ActorID, m.Email, m.Name, m.JoinedAt})
					}
					tw.Render()
				})
			})
		},
	}
}

func memberAvailableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "available <project-id>",
		Short: "list actors not yet on the project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(e engine.Engine) error {
				actor, err := cliActor(cmd.Context(), e)
				if err != nil {
					return err
				}
				actors, err := e.ListAvailableActors(cmd.Context(), actor, args[0])
				if err != nil {
					return err
				}
				return printJSON(actors)
			})
		},
	}
}

// ---- task ----

func taskCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "task", Short: "manage tasks"}
	cmd.AddCommand(taskCreateCmd())
	cmd.AddCommand(taskListCmd())
	cmd.AddCommand(taskShowCmd())
	cmd.AddCommand(taskUpdateCmd())
	cmd.AddCommand(taskStatusCmd())
	cmd.AddCommand(taskDeleteCmd())
	cmd.AddCommand(taskAttachCmd())
	cmd.AddCommand(taskAttachmentsCmd())
	return cmd
}

func taskCreateCmd() *cobra.Command {
	var projectID, title, description, priority string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "create a task in a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(e engine.Engine) error {
				actor, err := cliActor(cmd.Context(), e)
				if err != nil {
					return err
				}
				t, err := e.CreateTask(cmd.Context(), actor, engine.TaskCreateOptions{
					ProjectID:   projectID,
					Title:       title,
					Description: description,
					Priority:    priority,
				})
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&description, "description", "", "task description")
	cmd.Flags().StringVar(&priority, "priority", "", "low, medium or high (default medium)")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskListCmd() *cobra.Command {
	var opts engine.TaskQueryOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "query tasks with filters, search and paging",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(e engine.Engine) error {
				actor, err := cliActor(cmd.Context(), e)
				if err != nil {
					return err
				}
				page, err := e.QueryTasks(cmd.Context(), actor, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(page, func() {
					tw := table.NewWriter()
					tw.SetOutputMirror(os.Stdout)
					tw.AppendHeader(table.Row{"ID", "Project", "Title", "Status", "Priority", "Created"})
					for _, t := range page.Items {
						tw.AppendRow(table.Row{t.ID, t.ProjectID, t.Title, t.Status, t.Priority, t.CreatedAt})
					}
					tw.Render()
					fmt.Printf("page %d/%d, %d tasks total\n", page.Page, page.TotalPages, page.TotalCount)
				})
			})
		},
	}
	cmd.Flags().StringVar(&opts.ProjectID, "project", "", "filter by project id")
	cmd.Flags().StringVar(&opts.Status, "status", "", "filter by status")
	cmd.Flags().StringVar(&opts.Priority, "priority", "", "filter by priority")
	cmd.Flags().StringVar(&opts.Search, "search", "", "search in title and description")
	cmd.Flags().StringVar(&opts.SortBy, "sort", "", "sort by title, createdat, status or priority")
	cmd.Flags().BoolVar(&opts.Desc, "desc", false, "sort descending")
	cmd.Flags().IntVar(&opts.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&opts.Size, "size", 0, "page size")
	return cmd
}

func taskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(e engine.Engine) error {
				actor, err := cliActor(cmd.Context(), e)
				if err != nil {
					return err
				}
				t, err := e.GetTask(cmd.Context(), actor, args[0])
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
}

func taskUpdateCmd() *cobra.Command {
	var title, description, priority string
	cmd := &cobra.Command{
		Use:   "update <task-id>",
		Short: "update task fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(e engine.Engine) error {
				actor, err := cliActor(cmd.Context(), e)
				if err != nil {
					return err
				}
				var opts engine.TaskUpdateOptions
				if cmd.Flags().Changed("title") {
					opts.Title = &title
				}
				if cmd.Flags().Changed("description") {
					opts.Description = &description
				}
				if cmd.Flags().Changed("priority") {
					opts.Priority = &priority
				}
				t, err := e.UpdateTask(cmd.Context(), actor, args[0], opts)
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().StringVar(&priority, "priority", "", "new priority")
	return cmd
}

func taskStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <task-id> <todo|in_progress|done>",
		Short: "change a task's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(e engine.Engine) error {
				actor, err := cliActor(cmd.Context(), e)
				if err != nil {
					return err
				}
				t, err := e.UpdateTaskStatus(cmd.Context(), actor, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
}

func taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <task-id>",
		Short: "delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(e engine.Engine) error {
				actor, err := cliActor(cmd.Context(), e)
				if err != nil {
					return err
				}
				if err := e.DeleteTask(cmd.Context(), actor, args[0]); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
}

func taskAttachCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "attach <task-id>",
		Short: "upload a file attachment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(e engine.Engine) error {
				actor, err := cliActor(cmd.Context(), e)
				if err != nil {
					return err
				}
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				info, err := f.Stat()
				if err != nil {
					return err
				}
				name := filepath.Base(file)
				contentType := mime.TypeByExtension(filepath.Ext(name))
				if contentType == "" {
					contentType = "application/octet-stream"
				}
				a, err := e.UploadAttachment(cmd.Context(), actor, args[0], name, contentType, info.Size(), f)
				if err != nil {
					return err
				}
				return printJSON(a)
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path of the file to upload")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func taskAttachmentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "attachments <task-id>",
		Short: "list a task's attachments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(e engine.Engine) error {
				attachments, err := e.ListAttachments(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(attachments)
			})
		},
	}
}

// ---- actor ----

func actorCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "actor", Short: "manage the actor directory"}
	cmd.AddCommand(actorAddCmd())
	cmd.AddCommand(actorListCmd())
	cmd.AddCommand(actorGrantCmd())
	cmd.AddCommand(actorRevokeCmd())
	cmd.AddCommand(actorBootstrapCmd())
	return cmd
}

func actorAddCmd() *cobra.Command {
	var id, email, name string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "register an actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(e engine.Engine) error {
				a, err := e.RegisterActor(cmd.Context(), id, email, name)
				if err != nil {
					return err
				}
				return printJSON(a)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "actor id (generated when empty)")
	cmd.Flags().StringVar(&email, "email", "", "actor email")
	cmd.Flags().StringVar(&name, "name", "", "actor display name")
	return cmd
}

func actorListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list registered actors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(r repo.Repo) error {
				actors, err := r.ListActors(cmd.Context())
				if err != nil {
					return err
				}
				return printJSONOrTable(actors, func() {
					tw := table.NewWriter()
					tw.SetOutputMirror(os.Stdout)
					tw.AppendHeader(table.Row{"ID", "Email", "Name"})
					for _, a := range actors {
						tw.AppendRow(table.Row{a.ID, a.Email, a.Name})
					}
					tw.Render()
				})
			})
		},
	}
}

func actorGrantCmd() *cobra.Command {
	var actorRef, roleName string
	cmd := &cobra.Command{
		Use:   "grant-role",
		Short: "grant a global role (admin only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(e engine.Engine) error {
				actor, err := cliActor(cmd.Context(), e)
				if err != nil {
					return err
				}
				role, ok := domain.ParseRole(roleName)
				if !ok {
					return fmt.Errorf("unknown role %q", roleName)
				}
				if err := e.GrantRole(cmd.Context(), actor, actorRef, role); err != nil {
					return err
				}
				fmt.Printf("granted %s to %s\n", role, actorRef)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actorRef, "actor", "", "actor id or email")
	cmd.Flags().StringVar(&roleName, "role", "", "admin or manager")
	_ = cmd.MarkFlagRequired("actor")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func actorRevokeCmd() *cobra.Command {
	var actorRef, roleName string
	cmd := &cobra.Command{
		Use:   "revoke-role",
		Short: "revoke a global role (admin only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(e engine.Engine) error {
				actor, err := cliActor(cmd.Context(), e)
				if err != nil {
					return err
				}
				role, ok := domain.ParseRole(roleName)
				if !ok {
					return fmt.Errorf("unknown role %q", roleName)
				}
				if err := e.RevokeRole(cmd.Context(), actor, actorRef, role); err != nil {
					return err
				}
				fmt.Printf("revoked %s from %s\n", role, actorRef)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actorRef, "actor", "", "actor id or email")
	cmd.Flags().StringVar(&roleName, "role", "", "admin or manager")
	_ = cmd.MarkFlagRequired("actor")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

// actorBootstrapCmd writes the role directly, bypassing the admin check.
// A fresh workspace has no admin yet, so the first grant has to come
// from the operator.
func actorBootstrapCmd() *cobra.Command {
	var actorRef, roleName string
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "grant the first role on a fresh workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(e engine.Engine) error {
				role, ok := domain.ParseRole(roleName)
				if !ok {
					return fmt.Errorf("unknown role %q", roleName)
				}
				target, err := app.ResolveActor(cmd.Context(), e, actorRef)
				if err != nil {
					return err
				}
				tx, err := e.DB.BeginTx(cmd.Context(), nil)
				if err != nil {
					return err
				}
				defer tx.Rollback()
				if err := e.Repo.GrantRole(cmd.Context(), tx, target.ID, role); err != nil {
					return err
				}
				if err := tx.Commit(); err != nil {
					return err
				}
				fmt.Printf("granted %s to %s\n", role, target.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actorRef, "actor", "", "actor id or email")
	cmd.Flags().StringVar(&roleName, "role", "admin", "role to grant")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

// ---- apikey ----

func apikeyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "apikey", Short: "manage API keys"}
	cmd.AddCommand(apikeyCreateCmd())
	cmd.AddCommand(apikeyListCmd())
	cmd.AddCommand(apikeyRevokeCmd())
	return cmd
}

func apikeyCreateCmd() *cobra.Command {
	var targetID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "mint an API key; the plaintext is shown once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(e engine.Engine) error {
				actor, err := cliActor(cmd.Context(), e)
				if err != nil {
					return err
				}
				key, plaintext, err := e.CreateAPIKey(cmd.Context(), actor, targetID, name)
				if err != nil {
					return err
				}
				return printJSON(map[string]any{
					"id":       key.ID,
					"actor_id": key.ActorID,
					"name":     key.Name,
					"key":      plaintext,
				})
			})
		},
	}
	cmd.Flags().StringVar(&targetID, "actor", "", "actor id (defaults to the acting identity)")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var actorID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "list keys for an actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(r repo.Repo) error {
				if actorID == "" {
					actorID = viper.GetString("actor-id")
				}
				keys, err := r.ListAPIKeys(cmd.Context(), actorID)
				if err != nil {
					return err
				}
				return printJSON(keys)
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "actor id")
	return cmd
}

func apikeyRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(r repo.Repo) error {
				if err := r.DeleteAPIKey(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Println("revoked", args[0])
				return nil
			})
		},
	}
}

// ---- events ----

func eventsCmd() *cobra.Command {
	var filters repo.EventFilters
	cmd := &cobra.Command{
		Use:   "events",
		Short: "tail the audit log (admin only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(e engine.Engine) error {
				actor, err := cliActor(cmd.Context(), e)
				if err != nil {
					return err
				}
				events, err := e.TailEvents(cmd.Context(), actor, filters)
				if err != nil {
					return err
				}
				return printJSON(events)
			})
		},
	}
	cmd.Flags().StringVar(&filters.ProjectID, "project", "", "filter by project id")
	cmd.Flags().StringVar(&filters.Type, "type", "", "filter by event type")
	cmd.Flags().IntVar(&filters.Limit, "limit", 50, "number of events")
	return cmd
}

// ---- serve ----

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("TASKFLOW_JWT_SECRET")
			if strings.TrimSpace(secret) == "" {
				return errors.New("TASKFLOW_JWT_SECRET must be set")
			}
			workspace := viper.GetString("workspace")
			log := logging.New(workspace, viper.GetBool("verbose"))

			return withEngine(cmd.Context(), func(e engine.Engine) error {
				handler, err := server.New(server.Config{
					Engine:   e,
					BasePath: basePath,
					Auth:     server.AuthConfig{JWTSecret: secret, Logger: log},
				})
				if err != nil {
					return err
				}

				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()

				server.StartWebhookDispatcher(ctx, e, log)

				srv := &http.Server{
					Addr:              addr,
					Handler:           handler,
					ReadHeaderTimeout: 10 * time.Second,
				}
				errCh := make(chan error, 1)
				go func() {
					log.WithField("addr", addr).Info("http server listening")
					errCh <- srv.ListenAndServe()
				}()

				select {
				case <-ctx.Done():
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					defer cancel()
					log.Info("shutting down")
					return srv.Shutdown(shutdownCtx)
				case err := <-errCh:
					if errors.Is(err, http.ErrServerClosed) {
						return nil
					}
					return err
				}
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

// ---- log ----

func logCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "log", Short: "inspect the workspace log"}
	cmd.AddCommand(logTailCmd())
	return cmd
}

func logTailCmd() *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "print the last lines of the workspace log",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := filepath.Join(viper.GetString("workspace"), ".taskflow", "taskflow.log")
			data, err := os.ReadFile(path)
			if err != nil {
				if os.IsNotExist(err) {
					fmt.Println("no log file yet")
					return nil
				}
				return err
			}
			all := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
			if len(all) > lines {
				all = all[len(all)-lines:]
			}
			for _, line := range all {
				fmt.Println(line)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&lines, "lines", 50, "number of lines")
	return cmd
}
