package tokentree

import "unicode/utf8"

// Actualize materialises the selected path from node as the displayed
// tail. If the accepted part of the path is not valid UTF-8 (because it
// ends mid-codepoint) it performs a UTF-8 leap, promoting unaccepted
// children to accepted one by one along the selected path until the
// accepted bytes validate, or abandoning (node becomes unaccepted, tail
// empty) if none can complete the codepoint. The tail it emits through
// OnTailReplace is node's render including predictions; it then emits
// OnLogit for every accepted node on the resulting path with HasLogit set.
func (t *Tree) Actualize(node *Node) {
	txt := t.Render(node, 0, true)

	if !utf8.ValidString(t.Render(node, 0, false)) {
		pos := node
		for len(pos.Children) > 0 && pos.SelectedChild().IsAccepted {
			pos = pos.SelectedChild()
		}

		extend := func() bool {
			if len(pos.Children) > 0 && !pos.SelectedChild().IsAccepted {
				pos.SelectedChild().IsAccepted = true
				pos = pos.SelectedChild()
				return true
			}
			return false
		}

		for extend() && !utf8.ValidString(t.Render(node, 0, false)) {
		}
		if !utf8.ValidString(t.Render(node, 0, false)) {
			node.IsAccepted = false
			txt = ""
		}
	}

	t.cb.tailReplace(node.BasePos, txt)

	cur := node
	for cur != nil && cur.IsAccepted {
		if cur.HasLogit {
			t.cb.logit(cur.BasePos, cur.BasePos+cur.StrSize, cur.Logit-cur.MaxLogit)
		}
		cur = cur.SelectedChild()
	}
}
