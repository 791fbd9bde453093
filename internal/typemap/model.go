package typemap

import (
	"github.com/mark3labs/swagger2client/internal/naming"
	"github.com/mark3labs/swagger2client/internal/spec"
)

// OperationTypes holds the descriptors of one operation's inputs and result.
type OperationTypes struct {
	// Params is aligned with spec.Operation.Parameters.
	Params []*Descriptor
	Body   *Descriptor
	// Result is nil when a successful call yields no payload.
	Result *Descriptor
}

// Model is the type view of a ServiceModel.
type Model struct {
	// Declarations sorted by name.
	Declarations []*Descriptor
	// Operations keyed by operation id.
	Operations map[string]*OperationTypes
}

// MapModel maps every component schema, then the parameters, body and
// success payload of every operation. Component schemas are mapped first so
// they keep their declared names; inline declarations are named after the
// operation and role.
func MapModel(sm *spec.ServiceModel) (*Model, error) {
	m := New(sm.Resolver)
	for _, s := range sm.Schemas {
		if _, err := m.Map(s, Context{}); err != nil {
			return nil, err
		}
	}

	out := &Model{Operations: make(map[string]*OperationTypes, len(sm.Operations))}
	for i := range sm.Operations {
		op := &sm.Operations[i]
		ctx := Context{Operation: op.ID}
		if len(op.Tags) > 0 {
			ctx.Tag = op.Tags[0]
		}
		prefix := naming.Pascal(op.ID)
		ot := &OperationTypes{}
		for _, p := range op.Parameters {
			d, err := m.Map(p.Schema, withHint(ctx, prefix+naming.Pascal(p.Name)))
			if err != nil {
				return nil, err
			}
			ot.Params = append(ot.Params, d)
		}
		if op.Body != nil {
			d, err := m.Map(op.Body.Schema, withHint(ctx, prefix+"Body"))
			if err != nil {
				return nil, err
			}
			ot.Body = d
		}
		if r := op.Success(); r != nil {
			d, err := m.Map(r.Schema, withHint(ctx, prefix+"Response"))
			if err != nil {
				return nil, err
			}
			ot.Result = d
		}
		out.Operations[op.ID] = ot
	}
	out.Declarations = m.Declarations()
	return out, nil
}
