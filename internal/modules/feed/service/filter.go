package service

// TypeFilter пропускает только сообщения перечисленных типов.
type TypeFilter struct {
	allowed map[string]struct{}
}

func NewTypeFilter(types ...string) *TypeFilter {
	allowed := make(map[string]struct{}, len(types))
	for _, t := range types {
		allowed[t] = struct{}{}
	}
	return &TypeFilter{allowed: allowed}
}

func (f *TypeFilter) Pass(msgType string) bool {
	if msgType == "" {
		return false
	}
	_, ok := f.allowed[msgType]
	return ok
}
