package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/drewjocham/parsemodel/internal/jsonutil"
	"github.com/drewjocham/parsemodel/model"
	"github.com/drewjocham/parsemodel/schema"
)

type classInfo struct {
	Class  string                      `json:"class"`
	GoType string                      `json:"go_type,omitempty"`
	Fields map[string]schema.FieldType `json:"fields,omitempty"`
}

func newClassesCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:         "classes",
		Short:       "List registered model classes",
		Annotations: map[string]string{annotationOffline: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := getRegistry(cmd.Context())
			if err != nil {
				return err
			}
			infos, err := describeClasses(reg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if strings.EqualFold(output, "json") {
				return jsonutil.WriteIndented(out, infos)
			}
			renderClassTable(out, infos)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format (table|json)")
	return cmd
}

func describeClasses(reg *model.Registry) ([]classInfo, error) {
	names := reg.Classes()
	infos := make([]classInfo, 0, len(names))
	for _, name := range names {
		info := classInfo{Class: name}
		if typ, ok := reg.Type(name); ok {
			c, err := schema.Derive(name, typ)
			if err != nil {
				return nil, err
			}
			info.GoType = typ.String()
			info.Fields = c.Fields
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func renderClassTable(w io.Writer, infos []classInfo) {
	if len(infos) == 0 {
		fmt.Fprintln(w, "∅ No classes registered.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "CLASS\tGO TYPE\tFIELDS")
	fmt.Fprintln(tw, "-----\t-------\t------")

	for _, info := range infos {
		goType, fields := info.GoType, "-"
		if goType == "" {
			goType = "(factory)"
		}
		if len(info.Fields) > 0 {
			c := schema.Class{Name: info.Class, Fields: info.Fields}
			parts := make([]string, 0, len(info.Fields))
			for _, name := range c.FieldNames() {
				parts = append(parts, name+":"+string(info.Fields[name]))
			}
			fields = strings.Join(parts, ", ")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", info.Class, goType, fields)
	}

	tw.Flush()
}
