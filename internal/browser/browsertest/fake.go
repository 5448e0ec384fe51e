// Package browsertest 提供内存版 browser.Driver，供各包单元测试使用。
package browsertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"follow-mm/internal/browser"
)

// Page 是一个按选择器组织的内存页面。
type Page struct {
	mu          sync.Mutex
	elements    map[string][]*Element
	errs        map[string]error
	navigations []string
	closed      bool

	// OnNavigate 在 Navigate 时调用，可用于切换页面内容。
	OnNavigate func(url string)
}

// NewPage 创建空页面。
func NewPage() *Page {
	return &Page{
		elements: make(map[string][]*Element),
		errs:     make(map[string]error),
	}
}

// Set 设置选择器对应的元素列表。
func (p *Page) Set(selector string, els ...*Element) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, el := range els {
		el.page = p
	}
	p.elements[selector] = els
}

// Remove 删除选择器对应的元素。
func (p *Page) Remove(selector string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.elements, selector)
}

// FailWith 使对该选择器的查询返回 err，err 为 nil 时恢复。
func (p *Page) FailWith(selector string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.errs, selector)
		return
	}
	p.errs[selector] = err
}

// Close 模拟会话丢失，之后所有调用都返回 browser.ErrSessionClosed。
func (p *Page) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

// Navigations 返回访问过的地址。
func (p *Page) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigations...)
}

func (p *Page) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return browser.ErrSessionClosed
	}
	p.navigations = append(p.navigations, url)
	hook := p.OnNavigate
	p.mu.Unlock()

	if hook != nil {
		hook(url)
	}
	return nil
}

func (p *Page) WaitUntilPresent(ctx context.Context, selector string, _ time.Duration) (browser.Element, error) {
	el, err := p.Find(ctx, selector)
	if err != nil && browser.IsTransient(err) {
		return nil, fmt.Errorf("%w: 等待 %s 超时", browser.ErrTransientUI, selector)
	}
	return el, err
}

func (p *Page) Find(ctx context.Context, selector string) (browser.Element, error) {
	all, err := p.FindAll(ctx, selector)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("%w: %s", browser.ErrNotFound, selector)
	}
	return all[0], nil
}

func (p *Page) FindAll(_ context.Context, selector string) ([]browser.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, browser.ErrSessionClosed
	}
	if err, ok := p.errs[selector]; ok {
		return nil, err
	}
	return toElements(p.elements[selector]), nil
}

func (p *Page) Alive(context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.closed
}

func (p *Page) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Element 是内存元素。
type Element struct {
	mu       sync.Mutex
	page     *Page
	text     string
	attrs    map[string]string
	children map[string][]*Element
	value    string
	clicks   int
	hidden   bool

	// ClickErr 不为 nil 时 Click 返回该错误。
	ClickErr error
	// OnClick 在成功点击后调用。
	OnClick func()
}

// NewElement 创建带文本的元素。
func NewElement(text string) *Element {
	return &Element{
		text:     text,
		attrs:    make(map[string]string),
		children: make(map[string][]*Element),
	}
}

// WithAttr 设置属性。
func (e *Element) WithAttr(name, value string) *Element {
	e.attrs[name] = value
	return e
}

// WithChild 追加子元素。
func (e *Element) WithChild(selector string, child *Element) *Element {
	e.children[selector] = append(e.children[selector], child)
	return e
}

// SetText 修改文本。
func (e *Element) SetText(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.text = text
}

// SetHidden 切换元素可见性。
func (e *Element) SetHidden(hidden bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hidden = hidden
}

// Value 返回输入框当前内容。
func (e *Element) Value() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value
}

// Clicks 返回点击次数。
func (e *Element) Clicks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clicks
}

func (e *Element) Text(context.Context) (string, error) {
	if e.page != nil && e.page.isClosed() {
		return "", browser.ErrSessionClosed
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.text, nil
}

func (e *Element) Click(context.Context) error {
	if e.page != nil && e.page.isClosed() {
		return browser.ErrSessionClosed
	}
	e.mu.Lock()
	if e.ClickErr != nil {
		err := e.ClickErr
		e.mu.Unlock()
		return err
	}
	e.clicks++
	hook := e.OnClick
	e.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

func (e *Element) SendKeys(_ context.Context, text string) error {
	if e.page != nil && e.page.isClosed() {
		return browser.ErrSessionClosed
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.value += text
	return nil
}

func (e *Element) Clear(context.Context) error {
	if e.page != nil && e.page.isClosed() {
		return browser.ErrSessionClosed
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.value = ""
	return nil
}

func (e *Element) Attribute(_ context.Context, name string) (string, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.attrs[name]
	return v, ok, nil
}

func (e *Element) Visible(context.Context) (bool, error) {
	if e.page != nil && e.page.isClosed() {
		return false, browser.ErrSessionClosed
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.hidden, nil
}

func (e *Element) Find(ctx context.Context, selector string) (browser.Element, error) {
	all, err := e.FindAll(ctx, selector)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("%w: %s", browser.ErrNotFound, selector)
	}
	return all[0], nil
}

func (e *Element) FindAll(_ context.Context, selector string) ([]browser.Element, error) {
	if e.page != nil && e.page.isClosed() {
		return nil, browser.ErrSessionClosed
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return toElements(e.children[selector]), nil
}

func toElements(els []*Element) []browser.Element {
	out := make([]browser.Element, 0, len(els))
	for _, el := range els {
		out = append(out, el)
	}
	return out
}

var (
	_ browser.Driver  = (*Page)(nil)
	_ browser.Element = (*Element)(nil)
)
