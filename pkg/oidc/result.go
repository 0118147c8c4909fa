// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

// Package oidc defines the protocol vocabulary shared by every endpoint:
// the success/failure result algebra, the OAuth/OIDC error codes, and the
// response records that the transport layer renders.
package oidc

import "context"

// Result is the outcome of a protocol operation: either a value of type T
// or an Error describing a protocol failure. Expected protocol errors travel
// as Failure values, never as Go errors or panics.
type Result[T any] struct {
	value T
	err   *Error
}

// Success wraps a value in a successful Result.
func Success[T any](value T) Result[T] {
	return Result[T]{value: value}
}

// Failure wraps a protocol error in a failed Result.
func Failure[T any](err *Error) Result[T] {
	if err == nil {
		err = ErrServerError.WithDescription("failure constructed without an error")
	}
	return Result[T]{err: err}
}

// IsSuccess reports whether the result carries a value.
func (r Result[T]) IsSuccess() bool {
	return r.err == nil
}

// Value returns the success value. It is the zero value for failed results.
func (r Result[T]) Value() T {
	return r.value
}

// Err returns the protocol error, or nil for successful results.
func (r Result[T]) Err() *Error {
	return r.err
}

// Match invokes onSuccess or onFailure depending on the outcome and returns
// whatever the selected branch returns. It is the context-aware combinator
// used by handlers to translate outcomes into responses.
func (r Result[T]) Match(
	ctx context.Context,
	onSuccess func(context.Context, T) error,
	onFailure func(context.Context, *Error) error,
) error {
	if r.err != nil {
		return onFailure(ctx, r.err)
	}
	return onSuccess(ctx, r.value)
}

// Bind applies f to the success value, short-circuiting on failure.
func Bind[T, U any](r Result[T], f func(T) Result[U]) Result[U] {
	if r.err != nil {
		return Failure[U](r.err)
	}
	return f(r.value)
}

// Map transforms the success value, short-circuiting on failure.
func Map[T, U any](r Result[T], f func(T) U) Result[U] {
	if r.err != nil {
		return Failure[U](r.err)
	}
	return Success(f(r.value))
}
