package dom

import (
	"strings"
	"sync"
	"testing"
)

const page = `<!doctype html><html><head><title>t</title></head><body>
<div id="a"><img src="/img/one.jpg"><p><img src="two.png"></p></div>
<img src="data:image/png;base64,AAAA">
<img>
</body></html>`

func mustParse(t *testing.T, s, base string) *Document {
	t.Helper()
	doc, err := ParseString(s, base)
	if err != nil {
		t.Fatalf("ParseString() error = %v", err)
	}
	return doc
}

func TestQuerySelectorAll(t *testing.T) {
	doc := mustParse(t, page, "https://example.com/news/story.html")

	imgs := doc.QuerySelectorAll("IMG")
	if len(imgs) != 4 {
		t.Fatalf("got %d images, want 4", len(imgs))
	}
	if again := doc.QuerySelectorAll("img"); again[0] != imgs[0] {
		t.Error("element identity not stable across queries")
	}

	div := doc.QuerySelectorAll("div")[0]
	if nested := div.QuerySelectorAll("img"); len(nested) != 2 {
		t.Errorf("got %d nested images, want 2", len(nested))
	}
}

func TestSrc(t *testing.T) {
	doc := mustParse(t, page, "https://example.com/news/story.html")
	imgs := doc.QuerySelectorAll("img")

	tests := []struct {
		idx  int
		want string
	}{
		{0, "https://example.com/img/one.jpg"},
		{1, "https://example.com/news/two.png"},
		{2, "data:image/png;base64,AAAA"},
		{3, ""},
	}
	for _, tt := range tests {
		if got := imgs[tt.idx].Src(); got != tt.want {
			t.Errorf("img[%d].Src() = %q, want %q", tt.idx, got, tt.want)
		}
	}
}

func TestSrcHonoursBaseElement(t *testing.T) {
	doc := mustParse(t, `<html><head><base href="https://cdn.example.org/assets/"></head><body><img src="x.jpg"></body></html>`, "https://example.com/")
	if got := doc.QuerySelectorAll("img")[0].Src(); got != "https://cdn.example.org/assets/x.jpg" {
		t.Errorf("Src() = %q", got)
	}
}

func TestAttributes(t *testing.T) {
	doc := mustParse(t, page, "")
	img := doc.QuerySelectorAll("img")[0]

	if img.HasAttr("data-x") {
		t.Fatal("unexpected attribute")
	}
	if !img.SetAttrIfAbsent("data-x", "1") {
		t.Fatal("SetAttrIfAbsent() = false on first call")
	}
	if img.SetAttrIfAbsent("data-x", "2") {
		t.Fatal("SetAttrIfAbsent() = true on second call")
	}
	if v, _ := img.Attr("data-x"); v != "1" {
		t.Errorf("data-x = %q, want 1", v)
	}
	img.RemoveAttr("data-x")
	if img.HasAttr("data-x") {
		t.Error("attribute not removed")
	}
}

func TestSetAttrIfAbsentConcurrent(t *testing.T) {
	doc := mustParse(t, page, "")
	img := doc.QuerySelectorAll("img")[0]

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for range 20 {
		wg.Go(func() {
			if img.SetAttrIfAbsent("data-mark", "true") {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		})
	}
	wg.Wait()
	if wins != 1 {
		t.Errorf("got %d winners, want 1", wins)
	}
}

func TestStyle(t *testing.T) {
	doc := mustParse(t, `<body><img style="width: 10px"></body>`, "")
	img := doc.QuerySelectorAll("img")[0]

	img.SetStyle("filter", "blur(5px)")
	if got := img.Style("filter"); got != "blur(5px)" {
		t.Errorf("Style(filter) = %q", got)
	}
	if got := img.Style("width"); got != "10px" {
		t.Errorf("Style(width) = %q", got)
	}
	img.SetStyle("FILTER", "none")
	if v, _ := img.Attr("style"); v != "width: 10px; filter: none;" {
		t.Errorf("style = %q", v)
	}
}

func TestObserveChildList(t *testing.T) {
	doc := mustParse(t, page, "")

	var got []Mutation
	stop := doc.Observe(ObserveOptions{ChildList: true, Subtree: true}, func(ms []Mutation) {
		got = append(got, ms...)
	})

	container := doc.CreateElement("div")
	for range 3 {
		container.AppendChild(doc.CreateElement("img"))
	}
	if len(got) != 0 {
		t.Fatalf("detached mutations delivered: %d", len(got))
	}

	doc.Body().AppendChild(container)
	if len(got) != 1 {
		t.Fatalf("got %d mutations, want 1", len(got))
	}
	if got[0].Type != ChildList || len(got[0].AddedNodes) != 1 || got[0].AddedNodes[0] != container {
		t.Errorf("unexpected mutation %+v", got[0])
	}
	if n := len(got[0].AddedNodes[0].QuerySelectorAll("img")); n != 3 {
		t.Errorf("added container has %d images, want 3", n)
	}

	stop()
	doc.Body().AppendChild(doc.CreateElement("img"))
	if len(got) != 1 {
		t.Error("mutation delivered after stop")
	}
}

func TestObserveSubtreeFlag(t *testing.T) {
	doc := mustParse(t, page, "")
	div := doc.QuerySelectorAll("div")[0]

	count := 0
	doc.Observe(ObserveOptions{ChildList: true}, func(ms []Mutation) { count += len(ms) })

	div.AppendChild(doc.CreateElement("img"))
	if count != 0 {
		t.Errorf("nested mutation delivered without Subtree")
	}
	doc.Body().AppendChild(doc.CreateElement("img"))
	if count != 1 {
		t.Errorf("body mutation count = %d, want 1", count)
	}
}

func TestObserveAttributeFilter(t *testing.T) {
	doc := mustParse(t, page, "")
	img := doc.QuerySelectorAll("img")[0]

	var names []string
	doc.Observe(ObserveOptions{Subtree: true, Attributes: true, AttributeFilter: []string{"src"}}, func(ms []Mutation) {
		for _, m := range ms {
			names = append(names, m.AttributeName)
		}
	})

	img.SetAttr("alt", "x")
	img.SetAttr("src", "/other.jpg")
	if strings.Join(names, ",") != "src" {
		t.Errorf("got attribute mutations %v, want [src]", names)
	}
}

func TestObserverMayMutate(t *testing.T) {
	doc := mustParse(t, page, "")
	doc.Observe(ObserveOptions{ChildList: true, Subtree: true}, func(ms []Mutation) {
		for _, m := range ms {
			for _, n := range m.AddedNodes {
				n.SetAttr("data-seen", "true")
			}
		}
	})

	img := doc.CreateElement("img")
	doc.Body().AppendChild(img)
	if !img.HasAttr("data-seen") {
		t.Error("callback could not modify the added element")
	}
}

func TestRender(t *testing.T) {
	doc := mustParse(t, `<body><img src="a.jpg"></body>`, "")
	doc.QuerySelectorAll("img")[0].SetAttr("data-face-match", "true")
	if out := doc.String(); !strings.Contains(out, `data-face-match="true"`) {
		t.Errorf("rendered output missing attribute: %s", out)
	}
}

func TestCreateFragment(t *testing.T) {
	doc := mustParse(t, page, "")
	els, err := doc.CreateFragment(`<section><img src="a"><img src="b"></section><span></span>`)
	if err != nil {
		t.Fatalf("CreateFragment() error = %v", err)
	}
	if len(els) != 2 || els[0].TagName() != "section" {
		t.Fatalf("unexpected fragment %v", els)
	}
	if els[0].Parent() != nil {
		t.Error("fragment root should be detached")
	}
}
