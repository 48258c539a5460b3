package verify

import (
	"fmt"
	"math"
)

// eval computes n numerically. Any domain error, unbound symbol or
// non-finite intermediate is returned as an error; callers treat that
// probe as inconclusive.
func eval(n node, env map[string]float64) (float64, error) {
	v, err := evalNode(n, env)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrDomain
	}
	return v, nil
}

func evalNode(n node, env map[string]float64) (float64, error) {
	switch t := n.(type) {
	case numNode:
		f, _ := t.val.Float64()
		return f, nil
	case symNode:
		if v, ok := env[t.name]; ok {
			return v, nil
		}
		switch t.name {
		case "e":
			return math.E, nil
		case "pi":
			return math.Pi, nil
		}
		return 0, fmt.Errorf("%w: %s", ErrUnbound, t.name)
	case negNode:
		v, err := eval(t.x, env)
		return -v, err
	case binNode:
		l, err := eval(t.l, env)
		if err != nil {
			return 0, err
		}
		r, err := eval(t.r, env)
		if err != nil {
			return 0, err
		}
		switch t.op {
		case '+':
			return l + r, nil
		case '-':
			return l - r, nil
		case '*':
			return l * r, nil
		case '/':
			if r == 0 {
				return 0, ErrDomain
			}
			return l / r, nil
		case '^':
			return math.Pow(l, r), nil
		}
		return 0, fmt.Errorf("%w: operator %c", ErrSyntax, t.op)
	case callNode:
		args := make([]float64, len(t.args))
		for i, a := range t.args {
			v, err := eval(a, env)
			if err != nil {
				return 0, err
			}
			args[i] = v
		}
		return applyFloat(t.fn, args)
	}
	return 0, fmt.Errorf("%w: unknown node %T", ErrSyntax, n)
}

func applyFloat(fn string, args []float64) (float64, error) {
	x := args[0]
	switch fn {
	case "sin":
		return math.Sin(x), nil
	case "cos":
		return math.Cos(x), nil
	case "tan":
		return math.Tan(x), nil
	case "csc":
		return reciprocal(math.Sin(x))
	case "sec":
		return reciprocal(math.Cos(x))
	case "cot":
		return reciprocal(math.Tan(x))
	case "asin":
		return math.Asin(x), nil
	case "acos":
		return math.Acos(x), nil
	case "atan":
		return math.Atan(x), nil
	case "sinh":
		return math.Sinh(x), nil
	case "cosh":
		return math.Cosh(x), nil
	case "tanh":
		return math.Tanh(x), nil
	case "exp":
		return math.Exp(x), nil
	case "abs":
		return math.Abs(x), nil
	case "sqrt":
		if x < 0 {
			return 0, ErrDomain
		}
		return math.Sqrt(x), nil
	case "ln", "log":
		if x <= 0 {
			return 0, ErrDomain
		}
		v := math.Log(x)
		if len(args) == 2 {
			if args[1] <= 0 || args[1] == 1 {
				return 0, ErrDomain
			}
			v /= math.Log(args[1])
		}
		return v, nil
	}
	return 0, fmt.Errorf("%w: function %s", ErrUnbound, fn)
}

func reciprocal(v float64) (float64, error) {
	if v == 0 {
		return 0, ErrDomain
	}
	return 1 / v, nil
}
