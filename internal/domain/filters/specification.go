package filters

// Specification is the composable predicate form of a filter set.
// Evaluation may fail when an operator meets an incompatible value, so
// satisfaction carries an error alongside the verdict.
type Specification[T any] interface {
	// IsSatisfiedBy checks if the specification is satisfied by the candidate
	IsSatisfiedBy(candidate T) (bool, error)

	// And creates a composite specification with AND logic
	And(other Specification[T]) Specification[T]

	// Or creates a composite specification with OR logic
	Or(other Specification[T]) Specification[T]

	// Not creates a specification with NOT logic
	Not() Specification[T]
}

// BaseSpecification wraps a predicate function as a Specification.
type BaseSpecification[T any] struct {
	evaluator func(T) (bool, error)
}

// NewSpecification creates a specification from a predicate function.
func NewSpecification[T any](evaluator func(T) (bool, error)) *BaseSpecification[T] {
	return &BaseSpecification[T]{evaluator: evaluator}
}

// IsSatisfiedBy checks if the specification is satisfied.
func (s *BaseSpecification[T]) IsSatisfiedBy(candidate T) (bool, error) {
	return s.evaluator(candidate)
}

// And creates an AND composite specification.
func (s *BaseSpecification[T]) And(other Specification[T]) Specification[T] {
	return &AndSpecification[T]{left: s, right: other}
}

// Or creates an OR composite specification.
func (s *BaseSpecification[T]) Or(other Specification[T]) Specification[T] {
	return &OrSpecification[T]{left: s, right: other}
}

// Not creates a NOT specification.
func (s *BaseSpecification[T]) Not() Specification[T] {
	return &NotSpecification[T]{spec: s}
}

// AndSpecification is satisfied when both parts are satisfied.
type AndSpecification[T any] struct {
	left  Specification[T]
	right Specification[T]
}

// IsSatisfiedBy short-circuits on the first failure or mismatch.
func (s *AndSpecification[T]) IsSatisfiedBy(candidate T) (bool, error) {
	ok, err := s.left.IsSatisfiedBy(candidate)
	if err != nil || !ok {
		return false, err
	}
	return s.right.IsSatisfiedBy(candidate)
}

// And creates a new AND composite specification.
func (s *AndSpecification[T]) And(other Specification[T]) Specification[T] {
	return &AndSpecification[T]{left: s, right: other}
}

// Or creates a new OR composite specification.
func (s *AndSpecification[T]) Or(other Specification[T]) Specification[T] {
	return &OrSpecification[T]{left: s, right: other}
}

// Not creates a NOT specification.
func (s *AndSpecification[T]) Not() Specification[T] {
	return &NotSpecification[T]{spec: s}
}

// OrSpecification is satisfied when either part is satisfied.
type OrSpecification[T any] struct {
	left  Specification[T]
	right Specification[T]
}

// IsSatisfiedBy short-circuits on the first match or failure.
func (s *OrSpecification[T]) IsSatisfiedBy(candidate T) (bool, error) {
	ok, err := s.left.IsSatisfiedBy(candidate)
	if err != nil || ok {
		return ok, err
	}
	return s.right.IsSatisfiedBy(candidate)
}

// And creates a new AND composite specification.
func (s *OrSpecification[T]) And(other Specification[T]) Specification[T] {
	return &AndSpecification[T]{left: s, right: other}
}

// Or creates a new OR composite specification.
func (s *OrSpecification[T]) Or(other Specification[T]) Specification[T] {
	return &OrSpecification[T]{left: s, right: other}
}

// Not creates a NOT specification.
func (s *OrSpecification[T]) Not() Specification[T] {
	return &NotSpecification[T]{spec: s}
}

// NotSpecification inverts the wrapped specification.
type NotSpecification[T any] struct {
	spec Specification[T]
}

// IsSatisfiedBy inverts the verdict; errors pass through unchanged.
func (s *NotSpecification[T]) IsSatisfiedBy(candidate T) (bool, error) {
	ok, err := s.spec.IsSatisfiedBy(candidate)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

// And creates a new AND composite specification.
func (s *NotSpecification[T]) And(other Specification[T]) Specification[T] {
	return &AndSpecification[T]{left: s, right: other}
}

// Or creates a new OR composite specification.
func (s *NotSpecification[T]) Or(other Specification[T]) Specification[T] {
	return &OrSpecification[T]{left: s, right: other}
}

// Not cancels the double negation.
func (s *NotSpecification[T]) Not() Specification[T] {
	return s.spec
}

// FromFilters exposes a filter set as a specification over resolvable
// candidates.
func FromFilters(fs Filters) Specification[FieldResolver] {
	return NewSpecification(func(r FieldResolver) (bool, error) {
		return fs.IsSatisfiedBy(r)
	})
}
