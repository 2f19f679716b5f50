package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/drewjocham/parsemodel/internal/jsonutil"
	"github.com/drewjocham/parsemodel/model"
	"github.com/drewjocham/parsemodel/record"
	"github.com/drewjocham/parsemodel/store"
)

func newGetCmd() *cobra.Command {
	var typed bool
	cmd := &cobra.Command{
		Use:   "get <class> <objectId>",
		Short: "Fetch one object and print it",
		Long: `Fetch one object and print its REST JSON encoding. With --typed the
object is wrapped in its registered model and the bound fields are printed.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			reg, err := getRegistry(ctx)
			if err != nil {
				return err
			}
			db, err := getDatabase(ctx)
			if err != nil {
				return err
			}

			s := store.New(db, store.WithLogger(zap.L()))
			w, err := s.GetModel(ctx, reg, args[0], args[1])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if typed {
				if _, plain := w.(*model.Model); plain {
					return fmt.Errorf("%s has no registered model type", args[0])
				}
				view, err := typedView(w)
				if err != nil {
					return err
				}
				return jsonutil.WriteIndented(out, view)
			}

			raw, err := w.ParseObject().MarshalJSON()
			if err != nil {
				return err
			}
			return jsonutil.Indent(out, raw)
		},
	}
	cmd.Flags().BoolVar(&typed, "typed", false, "Print the registered model's bound fields")
	return cmd
}

// typedView lists w's bound fields under their record keys alongside the
// record's identity.
func typedView(w model.Wrapper) (map[string]any, error) {
	values, err := model.Values(w)
	if err != nil {
		return nil, err
	}

	obj := w.ParseObject()
	view := map[string]any{
		"className": obj.ClassName(),
		"objectId":  obj.ObjectID(),
	}
	if at := obj.CreatedAt(); !at.IsZero() {
		view["createdAt"] = at.Format(record.ISOFormat)
	}
	if at := obj.UpdatedAt(); !at.IsZero() {
		view["updatedAt"] = at.Format(record.ISOFormat)
	}
	for k, v := range values {
		if t, ok := v.(time.Time); ok {
			v = t.Format(record.ISOFormat)
		}
		view[k] = v
	}
	return view, nil
}
