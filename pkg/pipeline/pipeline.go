// Package pipeline decodes every method of a class concurrently.
package pipeline

import (
	"context"
	"fmt"
	"runtime"

	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"

	"github.com/daimatz/jvmcode/pkg/bytecode"
	"github.com/daimatz/jvmcode/pkg/classfile"
)

var log = commonlog.GetLogger("jvmcode.pipeline")

// Options controls DecodeClass.
type Options struct {
	// Workers bounds concurrent method decodes. Zero means GOMAXPROCS.
	Workers int
	// FailFast aborts the class on the first method that fails to decode.
	// Otherwise failures are recorded in the result and logged.
	FailFast bool
	// Loader, when set, resolves member references while decoding.
	Loader classfile.ClassLoader
}

// MethodResult is the outcome for one method. Exactly one of Body and Err
// is set.
type MethodResult struct {
	Method *classfile.MethodInfo
	Body   *bytecode.Body
	Err    error
}

// ClassResult holds one MethodResult per concrete method, in declaration
// order.
type ClassResult struct {
	Name    string
	Methods []MethodResult
}

// Failed returns the methods that did not decode.
func (r *ClassResult) Failed() []MethodResult {
	var out []MethodResult
	for _, m := range r.Methods {
		if m.Err != nil {
			out = append(out, m)
		}
	}
	return out
}

// Bodies returns the decoded bodies, skipping failures.
func (r *ClassResult) Bodies() []*bytecode.Body {
	out := make([]*bytecode.Body, 0, len(r.Methods))
	for _, m := range r.Methods {
		if m.Body != nil {
			out = append(out, m.Body)
		}
	}
	return out
}

// DecodeClass decodes the code of every method of cf. Abstract and native
// methods are not included. Cancelling ctx stops decoding between methods.
func DecodeClass(ctx context.Context, cf *classfile.ClassFile, opts Options) (*ClassResult, error) {
	name, err := cf.ClassName()
	if err != nil {
		return nil, err
	}

	// Any other method lacking a Code attribute is malformed and is
	// reported as a failure.
	var methods []*classfile.MethodInfo
	for i := range cf.Methods {
		if m := &cf.Methods[i]; !m.IsAbstract() && !m.IsNative() {
			methods = append(methods, m)
		}
	}

	var decodeOpts []bytecode.Option
	if opts.Loader != nil {
		decodeOpts = append(decodeOpts, bytecode.WithClassLoader(opts.Loader))
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	result := &ClassResult{Name: name, Methods: make([]MethodResult, len(methods))}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, m := range methods {
		if gctx.Err() != nil {
			break
		}
		i, m := i, m
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			body, err := bytecode.DecodeMethod(cf, m, decodeOpts...)
			if err != nil {
				err = fmt.Errorf("%s.%s%s: %w", name, m.Name, m.Descriptor, err)
				if opts.FailFast {
					return err
				}
				log.Warningf("skipping method: %s", err)
			}
			result.Methods[i] = MethodResult{Method: m, Body: body, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log.Debugf("decoded %s: %d methods, %d failed", name, len(methods), len(result.Failed()))
	return result, nil
}
