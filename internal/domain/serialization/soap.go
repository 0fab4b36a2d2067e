package serialization

import (
	"encoding/xml"
	"fmt"
	"strings"
	"unicode"

	"github.com/beevik/etree"
	"github.com/charging-platform/central-system/internal/domain/ocpp16"
)

const (
	// SOAP 1.2 与 WS-Addressing 命名空间
	SOAP12Namespace = "http://www.w3.org/2003/05/soap-envelope"
	WSANamespace    = "http://www.w3.org/2005/08/addressing"

	// OCPP 1.6 SOAP 服务命名空间
	CentralSystemNamespace = "urn://Ocpp/Cs/2015/10/"
	ChargePointNamespace   = "urn://Ocpp/Cp/2015/10/"

	// SOAPContentType SOAP 1.2 内容类型
	SOAPContentType = "application/soap+xml; charset=utf-8"

	// AnonymousAddress WS-Addressing 匿名地址
	AnonymousAddress = "http://www.w3.org/2005/08/addressing/anonymous"
)

// SOAPHeader OCPP-S 报文头
type SOAPHeader struct {
	ChargeBoxIdentity string
	MessageID         string
	RelatesTo         string
	From              string
	To                string
}

// SOAPFault SOAP 1.2 错误
type SOAPFault struct {
	Code    string
	Subcode string
	Reason  string
}

// Error 实现error接口
func (f *SOAPFault) Error() string {
	if f.Subcode != "" {
		return fmt.Sprintf("soap fault %s/%s: %s", f.Code, f.Subcode, f.Reason)
	}
	return fmt.Sprintf("soap fault %s: %s", f.Code, f.Reason)
}

// SOAPEnvelope 解析后的OCPP-S报文
type SOAPEnvelope struct {
	Header     SOAPHeader
	Action     ocpp16.Action
	IsResponse bool
	Body       []byte
	Fault      *SOAPFault
}

// SOAPSerializer OCPP-S 报文编解码
type SOAPSerializer struct{}

// NewSOAPSerializer 创建SOAP编解码器
func NewSOAPSerializer() *SOAPSerializer {
	return &SOAPSerializer{}
}

// SerializeRequest 生成请求报文，namespace 为目标服务命名空间
func (s *SOAPSerializer) SerializeRequest(namespace string, header SOAPHeader, action ocpp16.Action, payload interface{}) ([]byte, error) {
	return s.serialize(namespace, header, "/"+string(action), bodyElementName(action, true), payload)
}

// SerializeResponse 生成响应报文
func (s *SOAPSerializer) SerializeResponse(namespace string, header SOAPHeader, action ocpp16.Action, payload interface{}) ([]byte, error) {
	return s.serialize(namespace, header, "/"+string(action)+"Response", bodyElementName(action, false), payload)
}

// SerializeFault 生成错误报文
func (s *SOAPSerializer) SerializeFault(header SOAPHeader, fault SOAPFault) ([]byte, error) {
	doc, body := s.envelope("", header, WSANamespace+"/fault")

	f := body.CreateElement("s:Fault")
	code := f.CreateElement("s:Code")
	code.CreateElement("s:Value").SetText("s:" + fault.Code)
	if fault.Subcode != "" {
		code.CreateElement("s:Subcode").CreateElement("s:Value").SetText(fault.Subcode)
	}
	reason := f.CreateElement("s:Reason").CreateElement("s:Text")
	reason.CreateAttr("xml:lang", "en")
	reason.SetText(fault.Reason)

	return s.write("SerializeFault", doc)
}

func (s *SOAPSerializer) serialize(namespace string, header SOAPHeader, wsaAction, bodyName string, payload interface{}) ([]byte, error) {
	if payload == nil {
		payload = struct{}{}
	}
	raw, err := xml.Marshal(xmlBody{name: xml.Name{Space: namespace, Local: bodyName}, payload: payload})
	if err != nil {
		return nil, SerializationError{
			Operation: "SerializeSOAP",
			Message:   "Failed to marshal body",
			Cause:     err,
		}
	}
	bodyDoc := etree.NewDocument()
	if err := bodyDoc.ReadFromBytes(raw); err != nil {
		return nil, SerializationError{
			Operation: "SerializeSOAP",
			Message:   "Failed to parse marshalled body",
			Cause:     err,
		}
	}

	doc, body := s.envelope(namespace, header, wsaAction)
	body.AddChild(bodyDoc.Root())

	return s.write("SerializeSOAP", doc)
}

func (s *SOAPSerializer) envelope(namespace string, header SOAPHeader, wsaAction string) (*etree.Document, *etree.Element) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	env := doc.CreateElement("s:Envelope")
	env.CreateAttr("xmlns:s", SOAP12Namespace)
	env.CreateAttr("xmlns:a", WSANamespace)
	if namespace != "" {
		env.CreateAttr("xmlns:ocpp", namespace)
	}

	h := env.CreateElement("s:Header")
	if header.ChargeBoxIdentity != "" && namespace != "" {
		h.CreateElement("ocpp:chargeBoxIdentity").SetText(header.ChargeBoxIdentity)
	}
	h.CreateElement("a:Action").SetText(wsaAction)
	if header.MessageID != "" {
		h.CreateElement("a:MessageID").SetText(header.MessageID)
	}
	if header.RelatesTo != "" {
		h.CreateElement("a:RelatesTo").SetText(header.RelatesTo)
	}
	if header.From != "" {
		h.CreateElement("a:From").CreateElement("a:Address").SetText(header.From)
	}
	if header.To != "" {
		h.CreateElement("a:To").SetText(header.To)
	}

	return doc, env.CreateElement("s:Body")
}

func (s *SOAPSerializer) write(op string, doc *etree.Document) ([]byte, error) {
	data, err := doc.WriteToBytes()
	if err != nil {
		return nil, SerializationError{
			Operation: op,
			Message:   "Failed to write envelope",
			Cause:     err,
		}
	}
	return data, nil
}

// Deserialize 解析OCPP-S报文
func (s *SOAPSerializer) Deserialize(data []byte) (*SOAPEnvelope, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, SerializationError{
			Operation: "DeserializeSOAP",
			Message:   "Failed to parse XML",
			Cause:     err,
		}
	}

	root := doc.Root()
	if root == nil || root.Tag != "Envelope" {
		return nil, SerializationError{
			Operation: "DeserializeSOAP",
			Message:   "Missing SOAP Envelope",
		}
	}

	env := &SOAPEnvelope{}
	if h := root.FindElement("./Header"); h != nil {
		env.Header.ChargeBoxIdentity = childText(h, "./chargeBoxIdentity")
		env.Header.MessageID = childText(h, "./MessageID")
		env.Header.RelatesTo = childText(h, "./RelatesTo")
		env.Header.From = childText(h, "./From/Address")
		env.Header.To = childText(h, "./To")
	}

	body := root.FindElement("./Body")
	if body == nil {
		return nil, SerializationError{
			Operation: "DeserializeSOAP",
			Message:   "Missing SOAP Body",
		}
	}
	children := body.ChildElements()
	if len(children) == 0 {
		return nil, SerializationError{
			Operation: "DeserializeSOAP",
			Message:   "Empty SOAP Body",
		}
	}
	payload := children[0]

	if payload.Tag == "Fault" {
		env.Fault = &SOAPFault{
			Code:    localValue(childText(payload, "./Code/Value")),
			Subcode: localValue(childText(payload, "./Code/Subcode/Value")),
			Reason:  childText(payload, "./Reason/Text"),
		}
		return env, nil
	}

	action, isResponse, ok := actionFromBodyElement(payload.Tag)
	if !ok {
		return nil, SerializationError{
			Operation: "DeserializeSOAP",
			Message:   fmt.Sprintf("Unrecognised body element %q", payload.Tag),
		}
	}
	env.Action = action
	env.IsResponse = isResponse

	bodyDoc := etree.NewDocument()
	bodyDoc.SetRoot(payload.Copy())
	raw, err := bodyDoc.WriteToBytes()
	if err != nil {
		return nil, SerializationError{
			Operation: "DeserializeSOAP",
			Message:   "Failed to extract body",
			Cause:     err,
		}
	}
	env.Body = raw

	return env, nil
}

// DeserializeBody 将报文体解析为指定类型
func (s *SOAPSerializer) DeserializeBody(env *SOAPEnvelope, target interface{}) error {
	if err := xml.Unmarshal(env.Body, target); err != nil {
		return SerializationError{
			Operation: "DeserializeBody",
			Message:   fmt.Sprintf("Failed to unmarshal %s body", env.Action),
			Cause:     err,
		}
	}
	return nil
}

// xmlBody 以指定元素名输出载荷
type xmlBody struct {
	name    xml.Name
	payload interface{}
}

func (b xmlBody) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	return e.EncodeElement(b.payload, xml.StartElement{Name: b.name})
}

func bodyElementName(action ocpp16.Action, request bool) string {
	name := string(action)
	if name == "" {
		return name
	}
	r := []rune(name)
	r[0] = unicode.ToLower(r[0])
	if request {
		return string(r) + "Request"
	}
	return string(r) + "Response"
}

func actionFromBodyElement(tag string) (ocpp16.Action, bool, bool) {
	var base string
	var isResponse bool
	switch {
	case strings.HasSuffix(tag, "Request"):
		base = strings.TrimSuffix(tag, "Request")
	case strings.HasSuffix(tag, "Response"):
		base = strings.TrimSuffix(tag, "Response")
		isResponse = true
	default:
		return "", false, false
	}
	if base == "" {
		return "", false, false
	}
	r := []rune(base)
	r[0] = unicode.ToUpper(r[0])
	return ocpp16.Action(string(r)), isResponse, true
}

func childText(e *etree.Element, path string) string {
	if c := e.FindElement(path); c != nil {
		return strings.TrimSpace(c.Text())
	}
	return ""
}

func localValue(v string) string {
	if i := strings.LastIndex(v, ":"); i >= 0 {
		return v[i+1:]
	}
	return v
}
