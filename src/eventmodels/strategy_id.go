package eventmodels

type StrategyID string

func (id StrategyID) String() string {
	return string(id)
}
