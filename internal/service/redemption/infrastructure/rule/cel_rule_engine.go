package rule

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"
	"promocode/internal/service/redemption/domain"
)

// CELRuleEngine 是 domain.RuleEngine 的 CEL 实现。
// 批次上的资格规则是一条返回 bool 的 CEL 表达式，可用变量：
//
//	address  string     规范化后的用户地址
//	code     string     规范化后的兑换码
//	batch_id int        批次 ID，独立码为 0
//	now      timestamp  服务端当前时间
//
// 例如 `address.startsWith("0x00") && now < timestamp("2030-01-01T00:00:00Z")`。
type CELRuleEngine struct {
	env      *cel.Env
	programs sync.Map // rule -> cel.Program
}

// NewCELRuleEngine 创建规则引擎，编译后的程序按规则文本缓存。
func NewCELRuleEngine() (*CELRuleEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("address", cel.StringType),
		cel.Variable("code", cel.StringType),
		cel.Variable("batch_id", cel.IntType),
		cel.Variable("now", cel.TimestampType),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create cel env")
	}
	return &CELRuleEngine{env: env}, nil
}

// Evaluate 实现了 domain.RuleEngine 接口。
func (e *CELRuleEngine) Evaluate(ctx context.Context, rule string, fact domain.EligibilityFact) (bool, error) {
	prg, err := e.program(rule)
	if err != nil {
		return false, err
	}
	out, _, err := prg.ContextEval(ctx, map[string]any{
		"address":  fact.Address,
		"code":     fact.Code,
		"batch_id": int64(fact.BatchID),
		"now":      fact.Now,
	})
	if err != nil {
		return false, errors.Wrap(err, "evaluate rule")
	}
	ok, isBool := out.Value().(bool)
	if !isBool {
		return false, fmt.Errorf("rule returned %T, want bool", out.Value())
	}
	return ok, nil
}

func (e *CELRuleEngine) program(rule string) (cel.Program, error) {
	if cached, ok := e.programs.Load(rule); ok {
		return cached.(cel.Program), nil
	}
	ast, iss := e.env.Compile(rule)
	if iss != nil && iss.Err() != nil {
		return nil, errors.Wrap(iss.Err(), "compile rule")
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("rule must return bool, got %s", ast.OutputType())
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, errors.Wrap(err, "build rule program")
	}
	e.programs.Store(rule, prg)
	return prg, nil
}
