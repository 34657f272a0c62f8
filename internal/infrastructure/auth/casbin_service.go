package auth

import (
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/persist"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"gorm.io/gorm"
)

// DefaultModel is used when no model file is configured. Routes are matched
// with keyMatch2 and methods with regexMatch so "(GET)|(POST)" is allowed.
const DefaultModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && keyMatch2(r.obj, p.obj) && regexMatch(r.act, p.act)
`

type CasbinService struct{ E *casbin.Enforcer }

// NewCasbinService builds an enforcer whose policies live in the
// casbin_rule table of db.
func NewCasbinService(db *gorm.DB, modelPath string) (*CasbinService, error) {
	adp, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := loadModel(modelPath)
	if err != nil {
		return nil, err
	}
	return NewCasbinServiceWithAdapter(m, adp)
}

// NewCasbinServiceWithAdapter builds an enforcer from an already parsed model.
// A nil adapter keeps policies in memory only.
func NewCasbinServiceWithAdapter(m model.Model, adp persist.Adapter) (*CasbinService, error) {
	var (
		e   *casbin.Enforcer
		err error
	)
	if adp == nil {
		e, err = casbin.NewEnforcer(m)
	} else {
		e, err = casbin.NewEnforcer(m, adp)
	}
	if err != nil {
		return nil, err
	}
	if adp != nil {
		if err := e.LoadPolicy(); err != nil {
			return nil, err
		}
	}
	return &CasbinService{E: e}, nil
}

func loadModel(path string) (model.Model, error) {
	if path == "" {
		return model.NewModelFromString(DefaultModel)
	}
	return model.NewModelFromFile(path)
}
