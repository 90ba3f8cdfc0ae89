package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"etraxis/internal/app"
	"etraxis/internal/config"
	"etraxis/internal/db"
	"etraxis/internal/domain"
	"etraxis/internal/engine"
	"etraxis/internal/migrate"
	"etraxis/internal/repo"
)

var rootCmd = &cobra.Command{
	Use:   "etx",
	Short: "eTraxis CLI",
	Long: `eTraxis tracks issues through template-driven workflows.
Core concepts:
- Workspace: your .etraxis directory holding the database.
- Project: owns groups and templates.
- Template: a workflow schema; its states form the state machine.
- State: initial, intermediate, or final; entering a state applies its
  responsible policy (assign, keep, remove).
- Transitions: granted per system role (anyone, author, responsible) or per
  group; what a user can do is resolved, never stored.
- Responsible: the user assigned to an issue; candidates come from the
  state's responsible groups.
- Fields: per-state issue fields with role/group read or read-write grants.
- Dependencies: an issue cannot close while a dependency is still open.
- Event log: every issue mutation is recorded, view with 'etx log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("ETRAXIS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor", "", "acting user id or email")
	rootCmd.PersistentFlags().String("project", "", "project id")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor", rootCmd.PersistentFlags().Lookup("actor"))
	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(groupCmd())
	rootCmd.AddCommand(templateCmd())
	rootCmd.AddCommand(workflowCmd())
	rootCmd.AddCommand(issueCmd())
	rootCmd.AddCommand(logCmd())
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectDeleteCmd())
	return prj
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListProjects(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
}

func projectCreateCmd() *cobra.Command {
	var id, name, desc string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreateProject(ctx, id, name, desc)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "project id (generated if empty)")
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the active project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				p, err := app.ResolveProject(ctx, viper.GetString("project"), r)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func projectUpdateCmd() *cobra.Command {
	var description string
	var suspended bool
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update the active project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				p, err := app.ResolveProject(ctx, viper.GetString("project"), r)
				if err != nil {
					return err
				}
				var descPtr *string
				var susPtr *bool
				if cmd.Flags().Changed("description") {
					descPtr = &description
				}
				if cmd.Flags().Changed("suspended") {
					susPtr = &suspended
				}
				if err := r.UpdateProject(ctx, p.ID, susPtr, descPtr); err != nil {
					return err
				}
				p, err = r.GetProject(ctx, p.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().BoolVar(&suspended, "suspended", false, "suspend the project")
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteProject(ctx, id)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "project id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func userCmd() *cobra.Command {
	usr := &cobra.Command{Use: "user", Short: "Manage users"}
	usr.AddCommand(userCreateCmd())
	usr.AddCommand(userListCmd())
	usr.AddCommand(userShowCmd())
	return usr
}

func userCreateCmd() *cobra.Command {
	var email, fullName string
	var admin bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.CreateUser(ctx, email, fullName, admin)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&fullName, "name", "", "full name")
	cmd.Flags().BoolVar(&admin, "admin", false, "grant administrator")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func userListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				users, err := r.ListUsers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Email", "Admin"})
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.FullName, u.Email, u.Admin})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func userShowCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				u, err := app.ResolveActor(ctx, id, r)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "user id or email")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func groupCmd() *cobra.Command {
	grp := &cobra.Command{Use: "group", Short: "Manage groups"}
	grp.AddCommand(groupCreateCmd())
	grp.AddCommand(groupListCmd())
	grp.AddCommand(groupMemberCmd())
	return grp
}

func groupCreateCmd() *cobra.Command {
	var name, desc string
	var global bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create group",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				projectID := ""
				if !global {
					p, err := app.ResolveProject(ctx, viper.GetString("project"), e.Repo)
					if err != nil {
						return err
					}
					projectID = p.ID
				}
				g, err := e.CreateGroup(ctx, projectID, name, desc)
				if err != nil {
					return err
				}
				return printJSONOrTable(g)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "group name")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().BoolVar(&global, "global", false, "create a global group")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func groupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the active project's groups, global ones included",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				p, err := app.ResolveProject(ctx, viper.GetString("project"), r)
				if err != nil {
					return err
				}
				groups, err := r.ListGroups(ctx, p.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(groups)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Scope"})
				for _, g := range groups {
					scope := "global"
					if !g.Global() {
						scope = *g.ProjectID
					}
					tw.AppendRow(table.Row{g.ID, g.Name, scope})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func groupMemberCmd() *cobra.Command {
	mem := &cobra.Command{Use: "member", Short: "Manage group members"}

	var groupID, userID string
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a user to a group",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := app.ResolveActor(ctx, userID, e.Repo)
				if err != nil {
					return err
				}
				return e.AddMember(ctx, groupID, u.ID)
			})
		},
	}
	add.Flags().StringVar(&groupID, "group", "", "group id")
	add.Flags().StringVar(&userID, "user", "", "user id or email")
	_ = add.MarkFlagRequired("group")
	_ = add.MarkFlagRequired("user")

	var rmGroupID, rmUserID string
	remove := &cobra.Command{
		Use:   "remove",
		Short: "Remove a user from a group",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := app.ResolveActor(ctx, rmUserID, e.Repo)
				if err != nil {
					return err
				}
				return e.RemoveMember(ctx, rmGroupID, u.ID)
			})
		},
	}
	remove.Flags().StringVar(&rmGroupID, "group", "", "group id")
	remove.Flags().StringVar(&rmUserID, "user", "", "user id or email")
	_ = remove.MarkFlagRequired("group")
	_ = remove.MarkFlagRequired("user")

	var listGroupID string
	list := &cobra.Command{
		Use:   "list",
		Short: "List group members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				users, err := r.ListGroupMembers(ctx, listGroupID)
				if err != nil {
					return err
				}
				return printJSONOrTable(users)
			})
		},
	}
	list.Flags().StringVar(&listGroupID, "group", "", "group id")
	_ = list.MarkFlagRequired("group")

	mem.AddCommand(add, remove, list)
	return mem
}

func templateCmd() *cobra.Command {
	tpl := &cobra.Command{Use: "template", Short: "Manage templates"}
	tpl.AddCommand(templateListCmd())
	tpl.AddCommand(templateShowCmd())
	tpl.AddCommand(templateLockCmd())
	tpl.AddCommand(stateCmd())
	tpl.AddCommand(fieldCmd())
	return tpl
}

func templateListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the active project's templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				p, err := app.ResolveProject(ctx, viper.GetString("project"), r)
				if err != nil {
					return err
				}
				templates, err := r.ListTemplates(ctx, p.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(templates)
			})
		},
	}
}

func templateShowCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a template and its states",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				tpl, err := r.GetTemplate(ctx, id)
				if err != nil {
					return err
				}
				states, err := r.ListStates(ctx, tpl.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"template": tpl, "states": states})
				}
				fmt.Printf("%s (%s) prefix=%s locked=%v\n", tpl.Name, tpl.ID, tpl.Prefix, tpl.Locked)
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Type", "Responsible"})
				for _, s := range states {
					tw.AppendRow(table.Row{s.ID, s.Name, s.Type, s.Responsible})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "template id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func templateLockCmd() *cobra.Command {
	var id string
	var unlock bool
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Lock or unlock a template",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.LockTemplate(ctx, id, !unlock)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "template id")
	cmd.Flags().BoolVar(&unlock, "unlock", false, "unlock instead")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func stateCmd() *cobra.Command {
	st := &cobra.Command{Use: "state", Short: "Manage template states"}

	var templateID, name, typ, responsible string
	create := &cobra.Command{
		Use:   "create",
		Short: "Add a state to a template",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.CreateState(ctx, templateID, name, domain.StateType(typ), domain.ResponsiblePolicy(responsible))
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	create.Flags().StringVar(&templateID, "template", "", "template id")
	create.Flags().StringVar(&name, "name", "", "state name")
	create.Flags().StringVar(&typ, "type", "intermediate", "initial|intermediate|final")
	create.Flags().StringVar(&responsible, "responsible", "keep", "assign|keep|remove")
	_ = create.MarkFlagRequired("template")
	_ = create.MarkFlagRequired("name")

	var listTemplateID string
	list := &cobra.Command{
		Use:   "list",
		Short: "List a template's states",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				states, err := r.ListStates(ctx, listTemplateID)
				if err != nil {
					return err
				}
				return printJSONOrTable(states)
			})
		},
	}
	list.Flags().StringVar(&listTemplateID, "template", "", "template id")
	_ = list.MarkFlagRequired("template")

	st.AddCommand(create, list)
	return st
}

func fieldCmd() *cobra.Command {
	fld := &cobra.Command{Use: "field", Short: "Manage state fields"}

	var stateID, name, typ string
	var position int
	var required bool
	create := &cobra.Command{
		Use:   "create",
		Short: "Add a field to a state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f, err := e.CreateField(ctx, stateID, name, typ, position, required)
				if err != nil {
					return err
				}
				return printJSONOrTable(f)
			})
		},
	}
	create.Flags().StringVar(&stateID, "state", "", "state id")
	create.Flags().StringVar(&name, "name", "", "field name")
	create.Flags().StringVar(&typ, "type", "string", "field type")
	create.Flags().IntVar(&position, "position", 1, "display position")
	create.Flags().BoolVar(&required, "required", false, "required field")
	_ = create.MarkFlagRequired("state")
	_ = create.MarkFlagRequired("name")

	var listStateID string
	list := &cobra.Command{
		Use:   "list",
		Short: "List a state's fields",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				fields, err := r.ListFields(ctx, listStateID)
				if err != nil {
					return err
				}
				return printJSONOrTable(fields)
			})
		},
	}
	list.Flags().StringVar(&listStateID, "state", "", "state id")
	_ = list.MarkFlagRequired("state")

	var removeID string
	remove := &cobra.Command{
		Use:   "remove",
		Short: "Remove a field from its state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.RemoveField(ctx, removeID)
			})
		},
	}
	remove.Flags().StringVar(&removeID, "id", "", "field id")
	_ = remove.MarkFlagRequired("id")

	fld.AddCommand(create, list, remove)
	return fld
}

func workflowCmd() *cobra.Command {
	wf := &cobra.Command{Use: "workflow", Short: "Manage workflow schemas and grants"}
	wf.AddCommand(workflowImportCmd())
	wf.AddCommand(workflowExportCmd())
	wf.AddCommand(workflowGrantCmd())
	return wf
}

func workflowImportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a workflow schema as a new template",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			cfg, err := config.FromYAML(raw)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tpl, err := e.ImportWorkflow(ctx, cfg, raw)
				if err != nil {
					return err
				}
				return printJSONOrTable(tpl)
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "etraxis.yml", "schema file")
	return cmd
}

func workflowExportCmd() *cobra.Command {
	var templateID string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Print the schema a template was imported from",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				raw, err := r.GetWorkflowConfig(ctx, templateID)
				if err != nil {
					return err
				}
				fmt.Print(raw)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&templateID, "template", "", "template id")
	_ = cmd.MarkFlagRequired("template")
	return cmd
}

func workflowGrantCmd() *cobra.Command {
	grant := &cobra.Command{Use: "grant", Short: "Grant transitions and field permissions"}

	var fromID, toID, role string
	roleTransition := &cobra.Command{
		Use:   "role-transition",
		Short: "Allow a system role to transition between two states",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.GrantRoleTransition(ctx, fromID, toID, domain.SystemRole(role))
			})
		},
	}
	roleTransition.Flags().StringVar(&fromID, "from", "", "source state id")
	roleTransition.Flags().StringVar(&toID, "to", "", "destination state id")
	roleTransition.Flags().StringVar(&role, "role", "", "anyone|author|responsible")
	_ = roleTransition.MarkFlagRequired("from")
	_ = roleTransition.MarkFlagRequired("to")
	_ = roleTransition.MarkFlagRequired("role")

	var gFromID, gToID, gGroupID string
	groupTransition := &cobra.Command{
		Use:   "group-transition",
		Short: "Allow a group to transition between two states",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.GrantGroupTransition(ctx, gFromID, gToID, gGroupID)
			})
		},
	}
	groupTransition.Flags().StringVar(&gFromID, "from", "", "source state id")
	groupTransition.Flags().StringVar(&gToID, "to", "", "destination state id")
	groupTransition.Flags().StringVar(&gGroupID, "group", "", "group id")
	_ = groupTransition.MarkFlagRequired("from")
	_ = groupTransition.MarkFlagRequired("to")
	_ = groupTransition.MarkFlagRequired("group")

	var rgStateID, rgGroupID string
	responsibleGroup := &cobra.Command{
		Use:   "responsible-group",
		Short: "Mark a group as candidate assignees for a state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.GrantResponsibleGroup(ctx, rgStateID, rgGroupID)
			})
		},
	}
	responsibleGroup.Flags().StringVar(&rgStateID, "state", "", "state id")
	responsibleGroup.Flags().StringVar(&rgGroupID, "group", "", "group id")
	_ = responsibleGroup.MarkFlagRequired("state")
	_ = responsibleGroup.MarkFlagRequired("group")

	var frFieldID, frRole, frPerm string
	fieldRole := &cobra.Command{
		Use:   "field-role",
		Short: "Grant a system role access to a field",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.GrantFieldRolePermission(ctx, frFieldID, domain.SystemRole(frRole), domain.FieldPermission(frPerm))
			})
		},
	}
	fieldRole.Flags().StringVar(&frFieldID, "field", "", "field id")
	fieldRole.Flags().StringVar(&frRole, "role", "", "anyone|author|responsible")
	fieldRole.Flags().StringVar(&frPerm, "permission", "read", "read|read_write")
	_ = fieldRole.MarkFlagRequired("field")
	_ = fieldRole.MarkFlagRequired("role")

	var fgFieldID, fgGroupID, fgPerm string
	fieldGroup := &cobra.Command{
		Use:   "field-group",
		Short: "Grant a group access to a field",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.GrantFieldGroupPermission(ctx, fgFieldID, fgGroupID, domain.FieldPermission(fgPerm))
			})
		},
	}
	fieldGroup.Flags().StringVar(&fgFieldID, "field", "", "field id")
	fieldGroup.Flags().StringVar(&fgGroupID, "group", "", "group id")
	fieldGroup.Flags().StringVar(&fgPerm, "permission", "read", "read|read_write")
	_ = fieldGroup.MarkFlagRequired("field")
	_ = fieldGroup.MarkFlagRequired("group")

	grant.AddCommand(roleTransition, groupTransition, responsibleGroup, fieldRole, fieldGroup)
	return grant
}

func issueCmd() *cobra.Command {
	iss := &cobra.Command{Use: "issue", Short: "Manage issues"}
	iss.AddCommand(issueCreateCmd())
	iss.AddCommand(issueListCmd())
	iss.AddCommand(issueShowCmd())
	iss.AddCommand(issueEditCmd())
	iss.AddCommand(issueTransitionCmd())
	iss.AddCommand(issueTransitionsCmd())
	iss.AddCommand(issueAssignCmd())
	iss.AddCommand(issueReassignCmd())
	iss.AddCommand(issueResponsiblesCmd())
	iss.AddCommand(issueSuspendCmd())
	iss.AddCommand(issueResumeCmd())
	iss.AddCommand(issueDependCmd())
	iss.AddCommand(issueHistoryCmd())
	iss.AddCommand(issueChangesCmd())
	return iss
}

func issueCreateCmd() *cobra.Command {
	var templateID, subject string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an issue in the template's initial state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := app.ResolveActor(ctx, viper.GetString("actor"), e.Repo)
				if err != nil {
					return err
				}
				i, err := e.CreateIssue(ctx, engine.IssueCreateOptions{
					TemplateID: templateID,
					Subject:    subject,
					AuthorID:   actor.ID,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(i)
			})
		},
	}
	cmd.Flags().StringVar(&templateID, "template", "", "template id")
	cmd.Flags().StringVar(&subject, "subject", "", "issue subject")
	_ = cmd.MarkFlagRequired("template")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func issueListCmd() *cobra.Command {
	var f repo.IssueFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List issues",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				issues, err := r.ListIssues(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(issues)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Subject", "State", "Responsible", "Closed"})
				for _, i := range issues {
					responsible := ""
					if i.ResponsibleID != nil {
						responsible = *i.ResponsibleID
					}
					closed := ""
					if i.ClosedAt != nil {
						closed = *i.ClosedAt
					}
					tw.AppendRow(table.Row{i.ID, i.Subject, i.StateID, responsible, closed})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.TemplateID, "template", "", "template filter")
	cmd.Flags().StringVar(&f.StateID, "state", "", "state filter")
	cmd.Flags().StringVar(&f.AuthorID, "author", "", "author filter")
	cmd.Flags().StringVar(&f.ResponsibleID, "responsible", "", "responsible filter")
	cmd.Flags().BoolVar(&f.Open, "open", false, "open issues only")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "page size")
	return cmd
}

func issueShowCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show an issue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				i, err := r.GetIssue(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(i)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "issue id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func issueEditCmd() *cobra.Command {
	var id, subject, fieldID, oldValue, newValue string
	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Edit an issue's subject or record a field change",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := app.ResolveActor(ctx, viper.GetString("actor"), e.Repo)
				if err != nil {
					return err
				}
				var subjectPtr *string
				if cmd.Flags().Changed("subject") {
					subjectPtr = &subject
				}
				var edits []engine.FieldEdit
				if fieldID != "" {
					edit := engine.FieldEdit{FieldID: fieldID}
					if cmd.Flags().Changed("old") {
						edit.OldValue = &oldValue
					}
					if cmd.Flags().Changed("new") {
						edit.NewValue = &newValue
					}
					edits = append(edits, edit)
				}
				i, err := e.EditIssue(ctx, id, actor.ID, subjectPtr, edits)
				if err != nil {
					return err
				}
				return printJSONOrTable(i)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "issue id")
	cmd.Flags().StringVar(&subject, "subject", "", "new subject")
	cmd.Flags().StringVar(&fieldID, "field", "", "field id to change")
	cmd.Flags().StringVar(&oldValue, "old", "", "previous field value")
	cmd.Flags().StringVar(&newValue, "new", "", "new field value")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func issueTransitionCmd() *cobra.Command {
	var id, stateID, responsible string
	cmd := &cobra.Command{
		Use:   "transition",
		Short: "Move an issue to another state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := app.ResolveActor(ctx, viper.GetString("actor"), e.Repo)
				if err != nil {
					return err
				}
				var responsiblePtr *string
				if responsible != "" {
					u, err := app.ResolveActor(ctx, responsible, e.Repo)
					if err != nil {
						return err
					}
					responsiblePtr = &u.ID
				}
				i, ok, err := e.TransitionIssue(ctx, id, stateID, actor.ID, responsiblePtr)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("transition to %s not allowed for %s", stateID, actor.Email)
				}
				return printJSONOrTable(i)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "issue id")
	cmd.Flags().StringVar(&stateID, "state", "", "destination state id")
	cmd.Flags().StringVar(&responsible, "responsible", "", "responsible for assign states")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("state")
	return cmd
}

func issueTransitionsCmd() *cobra.Command {
	var id, user string
	cmd := &cobra.Command{
		Use:   "transitions",
		Short: "States a user may move the issue to",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if user == "" {
					user = viper.GetString("actor")
				}
				u, err := app.ResolveActor(ctx, user, r)
				if err != nil {
					return err
				}
				i, err := r.GetIssue(ctx, id)
				if err != nil {
					return err
				}
				states, err := r.TransitionsByUser(ctx, i, u.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(states)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Type"})
				for _, s := range states {
					tw.AppendRow(table.Row{s.ID, s.Name, s.Type})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "issue id")
	cmd.Flags().StringVar(&user, "user", "", "user id or email (defaults to actor)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func issueAssignCmd() *cobra.Command {
	var id, responsible string
	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Assign a responsible to an issue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := app.ResolveActor(ctx, viper.GetString("actor"), e.Repo)
				if err != nil {
					return err
				}
				u, err := app.ResolveActor(ctx, responsible, e.Repo)
				if err != nil {
					return err
				}
				ok, err := e.AssignIssue(ctx, id, u.ID, actor.ID)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%s is not a candidate responsible for issue %s", u.Email, id)
				}
				fmt.Printf("assigned %s to %s\n", id, u.FullName)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "issue id")
	cmd.Flags().StringVar(&responsible, "responsible", "", "user id or email")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("responsible")
	return cmd
}

func issueReassignCmd() *cobra.Command {
	var id, responsible string
	cmd := &cobra.Command{
		Use:   "reassign",
		Short: "Replace an issue's current responsible",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := app.ResolveActor(ctx, viper.GetString("actor"), e.Repo)
				if err != nil {
					return err
				}
				u, err := app.ResolveActor(ctx, responsible, e.Repo)
				if err != nil {
					return err
				}
				ok, err := e.ReassignIssue(ctx, id, u.ID, actor.ID)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("cannot reassign issue %s to %s", id, u.Email)
				}
				fmt.Printf("reassigned %s to %s\n", id, u.FullName)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "issue id")
	cmd.Flags().StringVar(&responsible, "responsible", "", "user id or email")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("responsible")
	return cmd
}

func issueResponsiblesCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "responsibles",
		Short: "Candidate assignees for the issue's current state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				i, err := r.GetIssue(ctx, id)
				if err != nil {
					return err
				}
				users, err := r.ResponsiblesByState(ctx, i.StateID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Email"})
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.FullName, u.Email})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "issue id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func issueSuspendCmd() *cobra.Command {
	var id, until string
	cmd := &cobra.Command{
		Use:   "suspend",
		Short: "Pause an issue until a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := app.ResolveActor(ctx, viper.GetString("actor"), e.Repo)
				if err != nil {
					return err
				}
				ok, err := e.SuspendIssue(ctx, id, until, actor.ID)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("issue %s cannot be suspended", id)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "issue id")
	cmd.Flags().StringVar(&until, "until", "", "RFC3339 resume date")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("until")
	return cmd
}

func issueResumeCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume a suspended issue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := app.ResolveActor(ctx, viper.GetString("actor"), e.Repo)
				if err != nil {
					return err
				}
				ok, err := e.ResumeIssue(ctx, id, actor.ID)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("issue %s is not suspended", id)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "issue id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func issueDependCmd() *cobra.Command {
	dep := &cobra.Command{Use: "depend", Short: "Manage issue dependencies"}

	var id, on string
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a dependency",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := app.ResolveActor(ctx, viper.GetString("actor"), e.Repo)
				if err != nil {
					return err
				}
				return e.AddDependency(ctx, id, on, actor.ID)
			})
		},
	}
	add.Flags().StringVar(&id, "id", "", "issue id")
	add.Flags().StringVar(&on, "on", "", "issue it depends on")
	_ = add.MarkFlagRequired("id")
	_ = add.MarkFlagRequired("on")

	var rmID, rmOn string
	remove := &cobra.Command{
		Use:   "remove",
		Short: "Remove a dependency",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := app.ResolveActor(ctx, viper.GetString("actor"), e.Repo)
				if err != nil {
					return err
				}
				return e.RemoveDependency(ctx, rmID, rmOn, actor.ID)
			})
		},
	}
	remove.Flags().StringVar(&rmID, "id", "", "issue id")
	remove.Flags().StringVar(&rmOn, "on", "", "dependency issue id")
	_ = remove.MarkFlagRequired("id")
	_ = remove.MarkFlagRequired("on")

	var listID string
	list := &cobra.Command{
		Use:   "list",
		Short: "List an issue's dependencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				deps, err := r.ListDependencies(ctx, listID)
				if err != nil {
					return err
				}
				return printJSONOrTable(deps)
			})
		},
	}
	list.Flags().StringVar(&listID, "id", "", "issue id")
	_ = list.MarkFlagRequired("id")

	dep.AddCommand(add, remove, list)
	return dep
}

func issueHistoryCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show an issue's event log",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				evts, err := r.ListEvents(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(evts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"At", "Type", "User", "Parameter"})
				for _, evt := range evts {
					param := ""
					if evt.Parameter != nil {
						param = *evt.Parameter
					}
					tw.AppendRow(table.Row{evt.CreatedAt, evt.Type, evt.UserID, param})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "issue id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func issueChangesCmd() *cobra.Command {
	var id, user string
	cmd := &cobra.Command{
		Use:   "changes",
		Short: "Field changes visible to a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if user == "" {
					user = viper.GetString("actor")
				}
				u, err := app.ResolveActor(ctx, user, r)
				if err != nil {
					return err
				}
				i, err := r.GetIssue(ctx, id)
				if err != nil {
					return err
				}
				changes, err := r.ChangesByIssue(ctx, i, u.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(changes)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Event", "Field", "Old", "New"})
				for _, c := range changes {
					field := "(subject)"
					if c.FieldID != nil {
						field = *c.FieldID
					}
					tw.AppendRow(table.Row{c.EventID, field, strOrEmpty(c.OldValue), strOrEmpty(c.NewValue)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "issue id")
	cmd.Flags().StringVar(&user, "user", "", "user id or email (defaults to actor)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	var issueID, evtType string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				evts, err := r.LatestEvents(ctx, n, issueID, evtType)
				if err != nil {
					return err
				}
				return printJSONOrTable(evts)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&issueID, "issue", "", "issue filter")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, engine.New(conn))
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
