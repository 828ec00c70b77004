package iothub

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	// APIVersion is sent in the MQTT username.
	APIVersion = "2021-04-12"

	twinResponseFilter  = "$iothub/twin/res/#"
	twinResponsePrefix  = "$iothub/twin/res/"
	twinGetTopic        = "$iothub/twin/GET/?$rid=%s"
	twinReportedTopic   = "$iothub/twin/PATCH/properties/reported/?$rid=%s"
	twinDesiredFilter   = "$iothub/twin/PATCH/properties/desired/#"
	methodsFilter       = "$iothub/methods/POST/#"
	methodsPrefix       = "$iothub/methods/POST/"
	methodResponseTopic = "$iothub/methods/res/%d/?$rid=%s"
	telemetryTopic      = "devices/%s/messages/events/"

	// componentCommandSeparator joins component and command in a method name.
	componentCommandSeparator = "*"
)

// TelemetryTopic returns the telemetry topic of a device. A component name is
// added to the property bag so the hub routes the message to it.
func TelemetryTopic(deviceID, componentName string) string {
	// system property names keep their literal '$'
	bag := "$.ct=" + url.QueryEscape("application/json") + "&$.ce=utf-8"
	if componentName != "" {
		bag += "&$.sub=" + url.QueryEscape(componentName)
	}
	return fmt.Sprintf(telemetryTopic, deviceID) + bag
}

// Username returns the MQTT username of a device announcing its model id.
func Username(hostName, deviceID, modelID string) string {
	query := url.Values{}
	query.Set("api-version", APIVersion)
	if modelID != "" {
		query.Set("model-id", modelID)
	}
	return fmt.Sprintf("%s/%s/?%s", hostName, deviceID, query.Encode())
}

// ResourceURI is the resource a device SAS token is scoped to.
func ResourceURI(hostName, deviceID string) string {
	return hostName + "/devices/" + deviceID
}

// twinResponse is a parsed $iothub/twin/res message.
type twinResponse struct {
	status    int
	requestID string
	version   int
	body      []byte
	err       error // set when the client closes before a response arrives
}

// parseTwinResponseTopic parses "$iothub/twin/res/{status}/?$rid={rid}[&$version={v}]".
func parseTwinResponseTopic(topic string) (twinResponse, error) {
	rest, ok := strings.CutPrefix(topic, twinResponsePrefix)
	if !ok {
		return twinResponse{}, fmt.Errorf("not a twin response topic: %s", topic)
	}
	statusText, query, err := splitTopicQuery(rest)
	if err != nil {
		return twinResponse{}, err
	}
	status, err := strconv.Atoi(statusText)
	if err != nil {
		return twinResponse{}, fmt.Errorf("invalid status in twin response topic %s: %w", topic, err)
	}

	resp := twinResponse{status: status, requestID: query.Get("$rid")}
	if v := query.Get("$version"); v != "" {
		if resp.version, err = strconv.Atoi(v); err != nil {
			return twinResponse{}, fmt.Errorf("invalid version in twin response topic %s: %w", topic, err)
		}
	}
	if resp.requestID == "" {
		return twinResponse{}, fmt.Errorf("twin response topic has no request id: %s", topic)
	}
	return resp, nil
}

// parseMethodTopic parses "$iothub/methods/POST/{method}/?$rid={rid}" and
// splits "component*command" method names.
func parseMethodTopic(topic string) (CommandRequest, error) {
	rest, ok := strings.CutPrefix(topic, methodsPrefix)
	if !ok {
		return CommandRequest{}, fmt.Errorf("not a method topic: %s", topic)
	}
	method, query, err := splitTopicQuery(rest)
	if err != nil {
		return CommandRequest{}, err
	}
	if method == "" {
		return CommandRequest{}, fmt.Errorf("method topic has no method name: %s", topic)
	}

	req := CommandRequest{CommandName: method, RequestID: query.Get("$rid")}
	if component, command, found := strings.Cut(method, componentCommandSeparator); found {
		req.ComponentName = component
		req.CommandName = command
	}
	if req.RequestID == "" {
		return CommandRequest{}, fmt.Errorf("method topic has no request id: %s", topic)
	}
	return req, nil
}

func splitTopicQuery(rest string) (string, url.Values, error) {
	head, rawQuery, found := strings.Cut(rest, "/?")
	if !found {
		return strings.TrimSuffix(head, "/"), url.Values{}, nil
	}
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "", nil, fmt.Errorf("invalid topic query %q: %w", rawQuery, err)
	}
	return head, query, nil
}
