package model

import (
	"fmt"
	"strings"

	"github.com/sila-protocol/sila-go/pkg/featuredef"
	"github.com/sila-protocol/sila-go/pkg/fqi"
)

type propertyBinding struct {
	get   PropertyGetter
	watch PropertyWatcher
}

// Builder assembles a Registry from feature definitions and handlers.
// Errors are reported by Build.
type Builder struct {
	defs       []*featuredef.Feature
	commands   map[string]CommandHandler
	properties map[string]propertyBinding
	err        error
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{
		commands:   make(map[string]CommandHandler),
		properties: make(map[string]propertyBinding),
	}
}

// AddFeature adds a feature definition.
func (b *Builder) AddFeature(def *featuredef.Feature) *Builder {
	if def == nil {
		b.fail(fmt.Errorf("%w: nil feature", ErrInvalidDefinition))
		return b
	}
	b.defs = append(b.defs, def)
	return b
}

// HandleCommand registers the handler of a command.
func (b *Builder) HandleCommand(id fqi.FQI, h CommandHandler) *Builder {
	if id.Kind() != fqi.KindCommand || h == nil {
		b.fail(fmt.Errorf("%w: invalid command handler for %q", ErrInvalidDefinition, id))
		return b
	}
	if _, ok := b.commands[id.Key()]; ok {
		b.fail(fmt.Errorf("%w: second handler for %s", ErrDuplicateIdentifier, id))
		return b
	}
	b.commands[id.Key()] = h
	return b
}

// HandleProperty registers the getter of a property.
func (b *Builder) HandleProperty(id fqi.FQI, get PropertyGetter) *Builder {
	return b.bindProperty(id, propertyBinding{get: get})
}

// HandleObservableProperty backs a property with an observable value.
func (b *Builder) HandleObservableProperty(id fqi.FQI, v *ObservableValue) *Builder {
	if v == nil {
		b.fail(fmt.Errorf("%w: nil value for %s", ErrInvalidDefinition, id))
		return b
	}
	return b.bindProperty(id, propertyBinding{get: v.Get, watch: v.Subscribe})
}

func (b *Builder) bindProperty(id fqi.FQI, pb propertyBinding) *Builder {
	if id.Kind() != fqi.KindProperty || pb.get == nil {
		b.fail(fmt.Errorf("%w: invalid property handler for %q", ErrInvalidDefinition, id))
		return b
	}
	if _, ok := b.properties[id.Key()]; ok {
		b.fail(fmt.Errorf("%w: second handler for %s", ErrDuplicateIdentifier, id))
		return b
	}
	b.properties[id.Key()] = pb
	return b
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// pendingErrors records error references to resolve once every feature is known.
type pendingErrors struct {
	owner fqi.FQI
	refs  []string
	set   func([]fqi.FQI)
}

// Build resolves all features and binds the handlers.
func (b *Builder) Build() (*Registry, error) {
	if b.err != nil {
		return nil, b.err
	}
	r := newRegistry()
	var pending []pendingErrors

	for _, def := range b.defs {
		f, p, err := buildFeature(r, def)
		if err != nil {
			return nil, err
		}
		r.features = append(r.features, f)
		pending = append(pending, p...)
	}

	for _, p := range pending {
		ids, err := r.resolveErrors(p.owner, p.refs)
		if err != nil {
			return nil, err
		}
		p.set(ids)
	}

	for key, h := range b.commands {
		c, ok := r.commands[key]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTarget, key)
		}
		c.Handler = h
	}
	for key, pb := range b.properties {
		p, ok := r.properties[key]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTarget, key)
		}
		p.Get = pb.get
		if p.Observable {
			p.Watch = pb.watch
		}
	}
	return r, nil
}

// resolveErrors maps error references of owner to identifiers. A reference
// is either a local error identifier or the FQI of an error in any feature.
func (r *Registry) resolveErrors(owner fqi.FQI, refs []string) ([]fqi.FQI, error) {
	ids := make([]fqi.FQI, 0, len(refs))
	for _, ref := range refs {
		var id fqi.FQI
		if strings.Contains(ref, "/") {
			parsed, err := fqi.Parse(ref)
			if err != nil || parsed.Kind() != fqi.KindDefinedExecutionError {
				return nil, fmt.Errorf("%w: %s: %q", ErrUndefinedError, owner, ref)
			}
			id = parsed
		} else {
			id = owner.Feature().DefinedExecutionError(ref)
		}
		if _, ok := r.errors[id.Key()]; !ok {
			return nil, fmt.Errorf("%w: %s: %s", ErrUndefinedError, owner, id)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func buildFeature(r *Registry, def *featuredef.Feature) (*Feature, []pendingErrors, error) {
	major, err := def.MajorVersion()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrInvalidDefinition, def.Identifier, err)
	}
	id, err := fqi.NewFeature(def.Originator, def.Category, def.Identifier, major, -1)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	if _, ok := r.byFeature[id.Key()]; ok {
		return nil, nil, fmt.Errorf("%w: feature %s", ErrDuplicateIdentifier, id)
	}

	f := &Feature{
		ID:          id,
		DisplayName: def.DisplayName,
		Description: def.Description,
		Definition:  def,
	}
	scope := newTypeScope(id)
	var pending []pendingErrors

	// Errors and data types first: the other nodes refer to them.
	for _, e := range def.Errors {
		eid, err := childID(id.DefinedExecutionError, e.Identifier)
		if err != nil {
			return nil, nil, err
		}
		if _, ok := r.errors[eid.Key()]; ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrDuplicateIdentifier, eid)
		}
		de := &DefinedError{ID: eid, DisplayName: e.DisplayName, Description: e.Description}
		r.errors[eid.Key()] = de
		f.Errors = append(f.Errors, de)
	}

	for _, dt := range def.DataTypes {
		if _, err := childID(id.DataType, dt.Identifier); err != nil {
			return nil, nil, err
		}
		d, err := scope.declare(dt)
		if err != nil {
			return nil, nil, err
		}
		r.dataTypes[d.ID.Key()] = d
		f.DataTypes = append(f.DataTypes, d)
	}
	if err := scope.resolveAll(); err != nil {
		return nil, nil, err
	}

	for _, cd := range def.Commands {
		cid, err := childID(id.Command, cd.Identifier)
		if err != nil {
			return nil, nil, err
		}
		if _, ok := r.commands[cid.Key()]; ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrDuplicateIdentifier, cid)
		}
		c := &Command{ID: cid, DisplayName: cd.DisplayName, Description: cd.Description, Observable: cd.Observable}
		if c.Parameters, err = scope.structure(cd.Parameters, cid.String()+"/Parameter"); err != nil {
			return nil, nil, err
		}
		if c.Responses, err = scope.structure(cd.Responses, cid.String()+"/Response"); err != nil {
			return nil, nil, err
		}
		if len(cd.IntermediateResponses) > 0 && !cd.Observable {
			return nil, nil, fmt.Errorf("%w: %s: intermediate responses on an unobservable command", ErrInvalidDefinition, cid)
		}
		if c.IntermediateResponses, err = scope.structure(cd.IntermediateResponses, cid.String()+"/IntermediateResponse"); err != nil {
			return nil, nil, err
		}
		r.commands[cid.Key()] = c
		f.Commands = append(f.Commands, c)
		pending = append(pending, pendingErrors{owner: cid, refs: cd.Errors, set: func(ids []fqi.FQI) { c.Errors = ids }})
	}

	for _, pd := range def.Properties {
		pid, err := childID(id.Property, pd.Identifier)
		if err != nil {
			return nil, nil, err
		}
		if _, ok := r.properties[pid.Key()]; ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrDuplicateIdentifier, pid)
		}
		t, err := scope.convert(pd.DataType, pid.String())
		if err != nil {
			return nil, nil, err
		}
		p := &Property{ID: pid, DisplayName: pd.DisplayName, Description: pd.Description, Observable: pd.Observable, Type: t}
		r.properties[pid.Key()] = p
		f.Properties = append(f.Properties, p)
		pending = append(pending, pendingErrors{owner: pid, refs: pd.Errors, set: func(ids []fqi.FQI) { p.Errors = ids }})
	}

	for _, md := range def.Metadata {
		mid, err := childID(id.Metadata, md.Identifier)
		if err != nil {
			return nil, nil, err
		}
		if _, ok := r.metadata[mid.Key()]; ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrDuplicateIdentifier, mid)
		}
		t, err := scope.convert(md.DataType, mid.String())
		if err != nil {
			return nil, nil, err
		}
		m := &Metadata{ID: mid, DisplayName: md.DisplayName, Description: md.Description, Type: t}
		for _, a := range md.Affects {
			target, err := fqi.Parse(a)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: %s affects %q: %v", ErrInvalidDefinition, mid, a, err)
			}
			switch target.Kind() {
			case fqi.KindFeature, fqi.KindCommand, fqi.KindProperty:
			default:
				return nil, nil, fmt.Errorf("%w: %s affects a %s", ErrInvalidDefinition, mid, target.Kind())
			}
			m.Affects = append(m.Affects, target)
		}
		r.metadata[mid.Key()] = m
		f.Metadata = append(f.Metadata, m)
		pending = append(pending, pendingErrors{owner: mid, refs: md.Errors, set: func(ids []fqi.FQI) { m.Errors = ids }})
	}

	r.byFeature[id.Key()] = f
	return f, pending, nil
}

func childID(child func(string) fqi.FQI, identifier string) (fqi.FQI, error) {
	if !fqi.ValidIdentifier(identifier) {
		return fqi.FQI{}, fmt.Errorf("%w: identifier %q", ErrInvalidDefinition, identifier)
	}
	return child(identifier), nil
}
