// Package tensor holds the flat, row-major buffers passed between the
// synthesis stages.
package tensor

import "fmt"

// Element is the set of scalar types the model stages exchange.
type Element interface {
	~float32 | ~int64
}

// Tensor is a contiguous row-major buffer with explicit shape metadata.
type Tensor[T Element] struct {
	Shape []int
	Data  []T
}

// New allocates a zeroed tensor of the given shape.
func New[T Element](shape ...int) Tensor[T] {
	return Tensor[T]{Shape: append([]int(nil), shape...), Data: make([]T, Volume(shape))}
}

// FromData wraps data with a shape, validating that the sizes agree.
func FromData[T Element](data []T, shape ...int) (Tensor[T], error) {
	if Volume(shape) != len(data) {
		return Tensor[T]{}, fmt.Errorf("shape %v needs %d elements, have %d", shape, Volume(shape), len(data))
	}
	return Tensor[T]{Shape: append([]int(nil), shape...), Data: data}, nil
}

// Volume returns the element count implied by shape.
func Volume(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Len returns the number of elements.
func (t Tensor[T]) Len() int { return len(t.Data) }

// Dim returns the size of axis i, or 0 when the axis does not exist.
func (t Tensor[T]) Dim(i int) int {
	if i < 0 || i >= len(t.Shape) {
		return 0
	}
	return t.Shape[i]
}

// Strides returns the row-major stride of every axis.
func (t Tensor[T]) Strides() []int {
	strides := make([]int, len(t.Shape))
	acc := 1
	for i := len(t.Shape) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= t.Shape[i]
	}
	return strides
}

// Offset converts a multi-dimensional index into a flat offset.
func (t Tensor[T]) Offset(idx ...int) int {
	if len(idx) != len(t.Shape) {
		panic(fmt.Sprintf("tensor: index rank %d does not match shape %v", len(idx), t.Shape))
	}
	off := 0
	for i, s := range t.Strides() {
		off += idx[i] * s
	}
	return off
}

// At returns the element at idx.
func (t Tensor[T]) At(idx ...int) T { return t.Data[t.Offset(idx...)] }

// Set stores v at idx.
func (t Tensor[T]) Set(v T, idx ...int) { t.Data[t.Offset(idx...)] = v }

// SameShape reports whether t and other have identical shapes.
func (t Tensor[T]) SameShape(shape []int) bool {
	if len(t.Shape) != len(shape) {
		return false
	}
	for i := range shape {
		if t.Shape[i] != shape[i] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (t Tensor[T]) Clone() Tensor[T] {
	return Tensor[T]{Shape: append([]int(nil), t.Shape...), Data: append([]T(nil), t.Data...)}
}

// Shape64 returns the shape as int64 values, the form runtime bindings expect.
func (t Tensor[T]) Shape64() []int64 {
	out := make([]int64, len(t.Shape))
	for i, d := range t.Shape {
		out[i] = int64(d)
	}
	return out
}
