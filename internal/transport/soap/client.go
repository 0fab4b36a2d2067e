package soap

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/charging-platform/central-system/internal/config"
	"github.com/charging-platform/central-system/internal/domain/ocpp16"
	"github.com/charging-platform/central-system/internal/domain/serialization"
	"github.com/charging-platform/central-system/internal/logger"
	"github.com/charging-platform/central-system/internal/transport"
)

const defaultMaxBodyBytes = 1 << 20

// Client OCPP-S 下行调用，回调地址由每次请求携带
type Client struct {
	httpClient   *http.Client
	serializer   *serialization.SOAPSerializer
	fromAddress  string
	maxBodyBytes int64
	logger       *logger.Logger
}

// NewClient 创建SOAP客户端，fromAddress 为中央系统对外的服务地址
func NewClient(cfg config.SOAPConfig, fromAddress string, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Default()
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	httpTransport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		httpTransport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	return &Client{
		httpClient:   &http.Client{Transport: httpTransport, Timeout: cfg.ClientTimeout},
		serializer:   serialization.NewSOAPSerializer(),
		fromAddress:  fromAddress,
		maxBodyBytes: maxBody,
		logger:       log.Component("soap-client"),
	}
}

// Invoke 实现 transport.Invoker
func (c *Client) Invoke(ctx context.Context, req *transport.Request, response interface{}) error {
	messageID := "urn:uuid:" + uuid.NewString()
	body, err := c.serializer.SerializeRequest(serialization.ChargePointNamespace, serialization.SOAPHeader{
		ChargeBoxIdentity: req.ChargePointID,
		MessageID:         messageID,
		From:              c.fromAddress,
		To:                req.Endpoint,
	}, req.Action, req.Payload)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build soap request for %s: %w", req.ChargePointID, err)
	}
	httpReq.Header.Set("Content-Type", fmt.Sprintf(`%s; action="/%s"`, serialization.SOAPContentType, req.Action))

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("soap call %s to %s: %w", req.Action, req.Endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("read soap response from %s: %w", req.ChargePointID, err)
	}
	c.logger.Debugf("%s to %s answered HTTP %d in %v", req.Action, req.ChargePointID, resp.StatusCode, time.Since(start))

	env, err := c.serializer.Deserialize(data)
	if err != nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("soap call %s to %s: HTTP %d", req.Action, req.ChargePointID, resp.StatusCode)
		}
		return err
	}
	if env.Fault != nil {
		return faultError(env.Fault)
	}
	if !env.IsResponse || env.Action != req.Action {
		return transport.NewCallError(ocpp16.ErrorCodeProtocolError, "expected %sResponse, got %s", req.Action, env.Action)
	}
	return c.serializer.DeserializeBody(env, response)
}

// faultError 子码为 OCPP 错误码时直接采用
func faultError(f *serialization.SOAPFault) *transport.CallError {
	code := ocpp16.ErrorCode(f.Subcode)
	if code == "" {
		code = ocpp16.ErrorCodeInternalError
		if f.Code == faultSender {
			code = ocpp16.ErrorCodeProtocolError
		}
	}
	return &transport.CallError{Code: code, Description: f.Reason}
}
