// Package qp provides a small dense quadratic-program engine with the
// set-then-update-in-place contract required by the per-tick controllers:
// the Hessian is set once, while gradient, constraint matrix and bounds are
// refreshed every control period without re-initializing the solver.
//
// Problems have the form
//
//	min 1/2 x'Hx + g'x   s.t.  l <= Ax <= u
//
// where rows with l == u are equality constraints. The solver is a primal
// active-set method; every factorization goes through gonum/mat. A solve
// failure is always propagated, never retried.
package qp

import (
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"walking-go/pkg/walkerr"
)

const (
	// feasTol is the constraint feasibility tolerance.
	feasTol = 1e-9

	// equalTol decides whether a row is pinned (l == u).
	equalTol = 1e-12
)

// Engine holds one QP of fixed dimensions.
type Engine struct {
	n, m int

	hessian     *mat.Dense
	gradient    *mat.VecDense
	constraints *mat.Dense
	lower       *mat.VecDense
	upper       *mat.VecDense

	initialized bool
	solved      bool
	solution    *mat.VecDense

	log *logrus.Entry
}

// New creates an engine for n decision variables and m constraint rows.
func New(n, m int) *Engine {
	return &Engine{
		n:   n,
		m:   m,
		log: logrus.WithField("component", "qp"),
	}
}

// Initialized reports whether Initialize has completed.
func (e *Engine) Initialized() bool { return e.initialized }

// SetHessian sets the constant Hessian. After Initialize the Hessian is
// frozen: a second call leaves the stored matrix untouched and only warns,
// since the cost curvature depends on the configured gains alone.
func (e *Engine) SetHessian(h *mat.SymDense) error {
	if r := h.SymmetricDim(); r != e.n {
		return walkerr.SolverFailure("qp", "hessian dimension mismatch")
	}
	if e.initialized {
		e.log.Warn("hessian is constant for the lifetime of the problem, ignoring update")
		return nil
	}
	dense := mat.NewDense(e.n, e.n, nil)
	dense.Copy(h)
	e.hessian = dense
	return nil
}

// SetGradient sets the gradient before Initialize or updates it in place
// afterwards.
func (e *Engine) SetGradient(g *mat.VecDense) error {
	if g.Len() != e.n {
		return walkerr.SolverFailure("qp", "gradient dimension mismatch")
	}
	if e.gradient == nil {
		e.gradient = mat.VecDenseCopyOf(g)
		return nil
	}
	e.gradient.CopyVec(g)
	return nil
}

// SetConstraints sets or updates the m-by-n constraint matrix.
func (e *Engine) SetConstraints(a *mat.Dense) error {
	r, c := a.Dims()
	if r != e.m || c != e.n {
		return walkerr.SolverFailure("qp", "constraint matrix dimension mismatch")
	}
	if e.constraints == nil {
		e.constraints = mat.DenseCopyOf(a)
		return nil
	}
	e.constraints.Copy(a)
	return nil
}

// SetBounds sets or updates the constraint bounds. Each row must satisfy
// l <= u; infinities mark one-sided rows.
func (e *Engine) SetBounds(l, u *mat.VecDense) error {
	if l.Len() != e.m || u.Len() != e.m {
		return walkerr.SolverFailure("qp", "bounds dimension mismatch")
	}
	for i := 0; i < e.m; i++ {
		if l.AtVec(i) > u.AtVec(i)+feasTol {
			return walkerr.SolverFailure("qp", "lower bound exceeds upper bound")
		}
	}
	if e.lower == nil {
		e.lower = mat.VecDenseCopyOf(l)
		e.upper = mat.VecDenseCopyOf(u)
		return nil
	}
	e.lower.CopyVec(l)
	e.upper.CopyVec(u)
	return nil
}

// Initialize performs the one-time setup. It fails when called twice or
// when any problem piece is still missing.
func (e *Engine) Initialize() error {
	if e.initialized {
		return walkerr.SolverFailure("qp", "already initialized")
	}
	if e.hessian == nil || e.gradient == nil || e.constraints == nil || e.lower == nil {
		return walkerr.SolverFailure("qp", "problem data incomplete")
	}
	e.initialized = true
	return nil
}

// activeRow is one working-set entry: a constraint row held at one bound.
type activeRow struct {
	row     int
	atUpper bool
}

// Solve runs the active-set iteration. On success the primal solution is
// available through Solution.
func (e *Engine) Solve() error {
	if !e.initialized {
		return walkerr.SolverFailure("qp", "solve before initialize")
	}
	e.solved = false

	// Equality rows are permanent members of the working set.
	working := make([]activeRow, 0, e.m)
	isEquality := make([]bool, e.m)
	inWorking := make([]bool, e.m)
	for i := 0; i < e.m; i++ {
		if math.Abs(e.upper.AtVec(i)-e.lower.AtVec(i)) <= equalTol {
			isEquality[i] = true
			inWorking[i] = true
			working = append(working, activeRow{row: i, atUpper: true})
		}
	}

	maxIter := 50 * (e.m + 1)
	var x *mat.VecDense
	for iter := 0; iter < maxIter; iter++ {
		xk, lambda, err := e.solveKKT(working)
		if err != nil {
			return err
		}
		x = xk

		// Most violated inactive inequality, if any.
		worst, worstViol, worstUpper := -1, feasTol, true
		for i := 0; i < e.m; i++ {
			if inWorking[i] {
				continue
			}
			ax := e.rowDot(i, x)
			if v := ax - e.upper.AtVec(i); !math.IsInf(e.upper.AtVec(i), 1) && v > worstViol {
				worst, worstViol, worstUpper = i, v, true
			}
			if v := e.lower.AtVec(i) - ax; !math.IsInf(e.lower.AtVec(i), -1) && v > worstViol {
				worst, worstViol, worstUpper = i, v, false
			}
		}
		if worst >= 0 {
			inWorking[worst] = true
			working = append(working, activeRow{row: worst, atUpper: worstUpper})
			continue
		}

		// Feasible point. Check multiplier signs of the active
		// inequalities; drop the most negative one.
		drop := -1
		worstMult := feasTol
		for k, w := range working {
			if isEquality[w.row] {
				continue
			}
			mult := lambda.AtVec(k)
			if !w.atUpper {
				mult = -mult
			}
			if -mult > worstMult {
				worstMult = -mult
				drop = k
			}
		}
		if drop >= 0 {
			inWorking[working[drop].row] = false
			working = append(working[:drop], working[drop+1:]...)
			continue
		}

		e.storeSolution(x)
		return nil
	}
	return walkerr.Infeasible("qp")
}

// solveKKT solves the equality-constrained subproblem for the working set.
func (e *Engine) solveKKT(working []activeRow) (*mat.VecDense, *mat.VecDense, error) {
	k := len(working)
	dim := e.n + k
	kkt := mat.NewDense(dim, dim, nil)
	rhs := mat.NewVecDense(dim, nil)

	for i := 0; i < e.n; i++ {
		for j := 0; j < e.n; j++ {
			kkt.Set(i, j, e.hessian.At(i, j))
		}
		rhs.SetVec(i, -e.gradient.AtVec(i))
	}
	for wi, w := range working {
		for j := 0; j < e.n; j++ {
			aij := e.constraints.At(w.row, j)
			kkt.Set(e.n+wi, j, aij)
			kkt.Set(j, e.n+wi, aij)
		}
		bound := e.upper.AtVec(w.row)
		if !w.atUpper {
			bound = e.lower.AtVec(w.row)
		}
		rhs.SetVec(e.n+wi, bound)
	}

	var sol mat.VecDense
	if err := sol.SolveVec(kkt, rhs); err != nil {
		return nil, nil, walkerr.SolverFailure("qp", "singular KKT system")
	}

	x := mat.NewVecDense(e.n, nil)
	for i := 0; i < e.n; i++ {
		x.SetVec(i, sol.AtVec(i))
	}
	lambda := mat.NewVecDense(maxInt(k, 1), nil)
	for i := 0; i < k; i++ {
		lambda.SetVec(i, sol.AtVec(e.n+i))
	}
	return x, lambda, nil
}

func (e *Engine) rowDot(row int, x *mat.VecDense) float64 {
	s := 0.0
	for j := 0; j < e.n; j++ {
		s += e.constraints.At(row, j) * x.AtVec(j)
	}
	return s
}

func (e *Engine) storeSolution(x *mat.VecDense) {
	if e.solution == nil {
		e.solution = mat.VecDenseCopyOf(x)
	} else {
		e.solution.CopyVec(x)
	}
	e.solved = true
}

// Solution returns a copy of the primal decision vector of the last
// successful Solve.
func (e *Engine) Solution() (*mat.VecDense, error) {
	if !e.solved {
		return nil, walkerr.SolverFailure("qp", "no solution available")
	}
	return mat.VecDenseCopyOf(e.solution), nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
