package engine

// op is one committed mutation in the document log. Ops are identified by
// (Replica, Clock) and addressed to a root container by kind and name; XML
// ops additionally carry a child-index path from the root element to the
// target element.
type op struct {
	Attrs    map[string]Value
	Values   []Value
	Path     []int
	Name     string
	Key      string
	Text     string
	Replica  uint64
	Clock    uint64
	Index    int
	N        int
	ContKind ContainerKind
	Kind     opKind
}

type opKind uint8

const (
	opListInsert opKind = iota
	opListRemove
	opMapSet
	opMapRemove
	opMapClear
	opTextInsert
	opTextDelete
	opXMLInsertText
	opXMLInsertElement
	opXMLRemoveChildren
	opXMLSetAttr
	opXMLRemoveAttr
)

func (k opKind) String() string {
	switch k {
	case opListInsert:
		return "list_insert"
	case opListRemove:
		return "list_remove"
	case opMapSet:
		return "map_set"
	case opMapRemove:
		return "map_remove"
	case opMapClear:
		return "map_clear"
	case opTextInsert:
		return "text_insert"
	case opTextDelete:
		return "text_delete"
	case opXMLInsertText:
		return "xml_insert_text"
	case opXMLInsertElement:
		return "xml_insert_element"
	case opXMLRemoveChildren:
		return "xml_remove_children"
	case opXMLSetAttr:
		return "xml_set_attr"
	case opXMLRemoveAttr:
		return "xml_remove_attr"
	default:
		return "unknown"
	}
}
