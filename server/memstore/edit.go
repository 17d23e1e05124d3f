package memstore

import (
	"github.com/andaru/ncrpc/ncerr"
	"github.com/andaru/ncrpc/ops"
	"github.com/antchfx/xmlquery"
)

// editOperation returns the operation attribute value of n, or inherited.
func editOperation(n *xmlquery.Node, inherited string) (string, *ncerr.Error) {
	for _, a := range n.Attr {
		if !isOperationAttr(a) {
			continue
		}
		switch a.Value {
		case ops.OperationMerge, ops.OperationReplace, ops.OperationCreate,
			ops.OperationDelete, ops.OperationRemove, ops.OperationNone:
			return a.Value, nil
		}
		return "", ncerr.BadAttribute("operation", n.Data,
			ncerr.WithType(ncerr.TypeApplication), ncerr.WithPath(path(n)),
			ncerr.WithMessage("unknown operation "+a.Value))
	}
	return inherited, nil
}

// applyEdit applies the edit element e below parent in the target tree.
// op is the operation in effect at parent.
func applyEdit(parent, e *xmlquery.Node, inherited string) *ncerr.Error {
	op, err := editOperation(e, inherited)
	if err != nil {
		return err
	}
	existing := find(parent, e)

	switch op {
	case ops.OperationCreate:
		if existing != nil {
			return ncerr.DataExists(ncerr.WithPath(path(existing)), ncerr.WithMessage(e.Data+" already exists"))
		}
		return insert(parent, e)

	case ops.OperationDelete:
		if existing == nil {
			return ncerr.DataMissing(ncerr.WithPath(path(parent)+"/"+e.Data), ncerr.WithMessage(e.Data+" does not exist"))
		}
		xmlquery.RemoveFromTree(existing)
		return nil

	case ops.OperationRemove:
		if existing != nil {
			xmlquery.RemoveFromTree(existing)
		}
		return nil

	case ops.OperationReplace:
		n, err := build(e)
		if err != nil {
			return err
		}
		if existing != nil {
			replaceNode(existing, n)
		} else {
			xmlquery.AddChild(parent, n)
		}
		return nil

	case ops.OperationNone:
		if existing == nil {
			return ncerr.DataMissing(ncerr.WithPath(path(parent)+"/"+e.Data), ncerr.WithMessage(e.Data+" does not exist"))
		}
		return applyChildren(existing, e, op)
	}

	// merge
	if existing == nil {
		return insert(parent, e)
	}
	if isLeaf(e) {
		setText(existing, e)
		return nil
	}
	return applyChildren(existing, e, op)
}

func applyChildren(target, e *xmlquery.Node, op string) *ncerr.Error {
	for _, c := range elements(e) {
		if err := applyEdit(target, c, op); err != nil {
			return err
		}
	}
	return nil
}

// insert adds the data in edit element e as a new child of parent.
func insert(parent, e *xmlquery.Node) *ncerr.Error {
	n, err := build(e)
	if err != nil {
		return err
	}
	xmlquery.AddChild(parent, n)
	return nil
}

// build returns the new data node described by the edit element e,
// honouring operation attributes of its descendants against an empty
// subtree.
func build(e *xmlquery.Node) (*xmlquery.Node, *ncerr.Error) {
	n := shallowCopy(e)
	for c := e.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != xmlquery.ElementNode {
			xmlquery.AddChild(n, copyNode(c))
			continue
		}
		op, err := editOperation(c, ops.OperationMerge)
		if err != nil {
			return nil, err
		}
		switch op {
		case ops.OperationDelete, ops.OperationNone:
			return nil, ncerr.DataMissing(ncerr.WithPath(path(e)+"/"+c.Data), ncerr.WithMessage(c.Data+" does not exist"))
		case ops.OperationRemove:
			continue
		}
		if existing := find(n, c); existing != nil {
			if op == ops.OperationCreate {
				return nil, ncerr.DataExists(ncerr.WithPath(path(e)+"/"+c.Data), ncerr.WithMessage(c.Data+" already exists"))
			}
			if err := applyEdit(n, c, op); err != nil {
				return nil, err
			}
			continue
		}
		child, err := build(c)
		if err != nil {
			return nil, err
		}
		xmlquery.AddChild(n, child)
	}
	return n, nil
}

// edit applies the edit-config content in edit to a copy of target and
// returns the copy. With continue-on-error, elements which fail are
// skipped and their errors returned with the partly edited copy.
func edit(target, cfg *xmlquery.Node, defaultOp, errorOption string) (*xmlquery.Node, ncerr.List) {
	if defaultOp == "" {
		defaultOp = ops.OperationMerge
	}
	work := copyNode(target)
	var errs ncerr.List
	for _, e := range elements(cfg) {
		trial := copyNode(work)
		if err := applyEdit(trial, e, defaultOp); err != nil {
			if errorOption != ops.ErrorContinueOnError {
				return nil, ncerr.List{err}
			}
			errs = append(errs, err)
			continue
		}
		work = trial
	}
	if defaultOp == ops.OperationReplace {
		// the config replaces the datastore; drop what it did not name
		for _, c := range elements(work) {
			if named(cfg, c) == nil {
				xmlquery.RemoveFromTree(c)
			}
		}
	}
	return work, errs
}

// named returns the top-level edit element naming the data node n.
func named(cfg, n *xmlquery.Node) *xmlquery.Node {
	for _, e := range elements(cfg) {
		if sameNode(e, n) {
			return e
		}
	}
	return nil
}
