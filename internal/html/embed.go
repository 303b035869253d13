// Package html renders the embeddable page for a published form.
package html

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"

	"form-analytics-service/internal/model"
)

const defaultTheme = "#2563eb"

// EmbedOptions carries the absolute URLs the page posts to.
type EmbedOptions struct {
	BaseURL string
}

type embedField struct {
	model.FormField
	InputType string
}

type embedData struct {
	Form         model.Form
	Fields       []embedField
	SubmitURL    string
	AnalyticsURL string
	ButtonText   string
	Theme        string
}

var embedTemplate = template.Must(template.New("embed").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Form.Name}}</title>
<style>
.ff-form{font-family:system-ui,sans-serif;max-width:640px;margin:0 auto}
.ff-field{margin-bottom:1rem;display:flex;flex-direction:column}
.ff-field label{font-weight:600;margin-bottom:.25rem}
.ff-error{color:#dc2626;font-size:.875rem}
.ff-submit{background:{{.Theme}};color:#fff;border:0;padding:.6rem 1.2rem;border-radius:4px}
</style>
</head>
<body>
<form class="ff-form" id="ff-{{.Form.ID}}" data-form-id="{{.Form.ID}}" data-submit-url="{{.SubmitURL}}" data-analytics-url="{{.AnalyticsURL}}" novalidate>
<h2>{{.Form.Name}}</h2>
{{- if .Form.Description}}
<p>{{.Form.Description}}</p>
{{- end}}
{{- range .Fields}}
{{- if eq .InputType "hidden"}}
<input type="hidden" name="{{.ID}}" id="{{.ID}}">
{{- else}}
<div class="ff-field" data-field-id="{{.ID}}">
<label for="{{.ID}}">{{.Label}}{{if .Required}} *{{end}}</label>
{{- if eq .InputType "textarea"}}
<textarea name="{{.ID}}" id="{{.ID}}" placeholder="{{.Placeholder}}"{{if .Required}} required{{end}}></textarea>
{{- else if eq .InputType "select"}}
<select name="{{.ID}}" id="{{.ID}}"{{if .Required}} required{{end}}>
<option value=""></option>
{{- range .Options}}
<option value="{{.}}">{{.}}</option>
{{- end}}
</select>
{{- else if eq .InputType "radio"}}
{{- $id := .ID}}
{{- range .Options}}
<label><input type="radio" name="{{$id}}" value="{{.}}"> {{.}}</label>
{{- end}}
{{- else if eq .InputType "checkbox"}}
{{- $id := .ID}}
{{- range .Options}}
<label><input type="checkbox" name="{{$id}}" value="{{.}}"> {{.}}</label>
{{- end}}
{{- else}}
<input type="{{.InputType}}" name="{{.ID}}" id="{{.ID}}" placeholder="{{.Placeholder}}"{{if .Required}} required{{end}}>
{{- end}}
<span class="ff-error" data-error-for="{{.ID}}"></span>
</div>
{{- end}}
{{- end}}
<button type="submit" class="ff-submit">{{.ButtonText}}</button>
</form>
<script>
(function(){
var form=document.getElementById("ff-{{.Form.ID}}");
var sid=(window.crypto&&crypto.randomUUID)?crypto.randomUUID():String(Date.now())+Math.random();
var base=form.dataset.analyticsUrl;
function post(url,body){return fetch(url,{method:"POST",headers:{"Content-Type":"application/json"},body:JSON.stringify(body||{})});}
post(base,{sessionId:sid,formId:form.dataset.formId,referrer:document.referrer,device:{type:/Mobi/.test(navigator.userAgent)?"mobile":"desktop"}});
var started=false;
form.addEventListener("focusin",function(e){
if(!e.target.name)return;
if(!started){started=true;post(base+"/"+sid+"/started");}
post(base+"/"+sid+"/interactions",{fieldId:e.target.name,type:"focus"});
});
form.addEventListener("focusout",function(e){if(e.target.name)post(base+"/"+sid+"/interactions",{fieldId:e.target.name,type:"blur"});});
form.addEventListener("submit",function(e){
e.preventDefault();
var data={};
new FormData(form).forEach(function(v,k){if(data[k]!==undefined){data[k]=[].concat(data[k],v);}else{data[k]=v;}});
post(base+"/"+sid+"/completed");
post(form.dataset.submitUrl,{data:data}).then(function(r){return r.json().then(function(b){return {ok:r.ok,body:b};});}).then(function(res){
if(res.ok){post(base+"/"+sid+"/submitted");form.innerHTML="<p>"+(res.body.message||"")+"</p>";if(res.body.redirectUrl){window.location=res.body.redirectUrl;}return;}
var err=res.body.error||{};
var slot=err.field?form.querySelector('[data-error-for="'+err.field+'"]'):null;
if(slot){slot.textContent=err.message;post(base+"/"+sid+"/interactions",{fieldId:err.field,type:"error",errorMessage:err.message});}else{alert(err.message);}
});
});
})();
</script>
</body>
</html>
`))

// RenderEmbed renders form as a standalone HTML page.
func RenderEmbed(form model.Form, opts EmbedOptions) ([]byte, error) {
	fields := make([]model.FormField, len(form.Fields))
	copy(fields, form.Fields)
	sort.SliceStable(fields, func(i, j int) bool { return fields[i].Order < fields[j].Order })

	data := embedData{
		Form:         form,
		SubmitURL:    fmt.Sprintf("%s/forms/%s/submit", opts.BaseURL, form.ID),
		AnalyticsURL: fmt.Sprintf("%s/analytics/sessions", opts.BaseURL),
		ButtonText:   form.Settings.SubmitButtonText,
		Theme:        form.Settings.Theme,
	}
	if data.ButtonText == "" {
		data.ButtonText = "Submit"
	}
	if data.Theme == "" {
		data.Theme = defaultTheme
	}
	for _, f := range fields {
		data.Fields = append(data.Fields, embedField{FormField: f, InputType: inputType(f.Type)})
	}

	var buf bytes.Buffer
	if err := embedTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render embed %s: %w", form.ID, err)
	}
	return buf.Bytes(), nil
}

func inputType(t model.FieldType) string {
	switch t {
	case model.FieldEmail:
		return "email"
	case model.FieldPhone:
		return "tel"
	case model.FieldNumber, model.FieldRating:
		return "number"
	case model.FieldTextarea, model.FieldSignature:
		return "textarea"
	case model.FieldSelect, model.FieldRadio, model.FieldCheckbox, model.FieldDate, model.FieldTime, model.FieldFile, model.FieldHidden:
		return string(t)
	default:
		return "text"
	}
}
