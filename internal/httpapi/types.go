package httpapi

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/supremeagent/promptrunner/pkg/api"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type PromptRequest = api.PromptRequest
type PromptResponse = api.PromptResponse
type LoginRequest = api.LoginRequest
type TokenPair = api.TokenPair
type ScheduleRequest = api.ScheduleRequest
type ScheduleResponse = api.ScheduleResponse
