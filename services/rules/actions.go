package rules

import "fmt"

// ApplyActions processes an action list in order against a ticket snapshot
// and returns the computed changes and side-effect descriptors. It performs
// no I/O and never mutates the ticket, so the same call serves both live and
// dry-run execution. An unrecognized action type is recorded as an error and
// processing continues with the remaining actions.
func ApplyActions(actions []Action, ticket TicketContext) ApplyResult {
	result := ApplyResult{
		Changes:       map[string]any{},
		Notifications: []Notification{},
		Webhooks:      []Webhook{},
		Errors:        []string{},
	}

	for _, action := range actions {
		switch action.Type {
		case ActionSetStatus:
			result.Changes["status"] = action.Params["status"]
		case ActionSetPriority:
			result.Changes["priority"] = action.Params["priority"]
		case ActionAssign:
			result.Changes["assignee"] = action.Params["assignee"]
		case ActionAddTag:
			tag, _ := action.Params["tag"].(string)
			result.Changes["tags"] = addTag(currentTags(ticket, result.Changes), tag)
		case ActionRemoveTag:
			tag, _ := action.Params["tag"].(string)
			result.Changes["tags"] = removeTag(currentTags(ticket, result.Changes), tag)
		case ActionNotify:
			result.Notifications = append(result.Notifications, Notification{
				Channel:   stringParam(action.Params, "channel"),
				Message:   stringParam(action.Params, "message"),
				Recipient: stringParam(action.Params, "recipient"),
			})
		case ActionWebhook:
			payload, _ := action.Params["payload"].(map[string]any)
			result.Webhooks = append(result.Webhooks, Webhook{
				Target:  stringParam(action.Params, "target"),
				Payload: payload,
			})
		default:
			result.Errors = append(result.Errors, fmt.Sprintf("unknown action type: %s", action.Type))
		}
	}

	return result
}

// currentTags returns the tag list a tag action should build on: the list
// computed by an earlier action in the same batch if there is one, otherwise
// the ticket's current tags. The result of a tag action is always the full
// replacement list, so the caller can apply it as a single field write.
func currentTags(ticket TicketContext, changes map[string]any) []string {
	if pending, ok := changes["tags"].([]string); ok {
		return pending
	}
	return normalizeTags(ticket["tags"])
}

func normalizeTags(v any) []string {
	switch tags := v.(type) {
	case []string:
		return append([]string(nil), tags...)
	case []any:
		out := make([]string, 0, len(tags))
		for _, t := range tags {
			if s, ok := t.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func addTag(tags []string, tag string) []string {
	if tag == "" {
		return emptyAsList(tags)
	}
	for _, t := range tags {
		if t == tag {
			return emptyAsList(tags)
		}
	}
	return append(tags, tag)
}

func removeTag(tags []string, tag string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t != tag {
			out = append(out, t)
		}
	}
	return out
}

// emptyAsList keeps the replacement value a list even when empty, so the
// change entry is always applicable as-is.
func emptyAsList(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func stringParam(params map[string]any, key string) string {
	s, _ := params[key].(string)
	return s
}
