package healthie

const queryUser = `
query($id: ID!) {
  user(id: $id) {
    id
    email
    first_name
    last_name
  }
}`

const queryUsers = `
query($keywords: String!) {
  users(should_paginate: false, keywords: $keywords) {
    id
    email
    first_name
    last_name
    dob
  }
}`

const queryCustomModuleForm = `
query($id: ID!) {
  customModuleForm(id: $id) {
    id
    name
    custom_modules {
      id
      label
      mod_type
      required
      options
    }
  }
}`

const mutationCreateFormAnswerGroup = `
mutation createFormAnswerGroup($input: createFormAnswerGroupInput!) {
  createFormAnswerGroup(input: $input) {
    form_answer_group {
      id
      finished
    }
    messages {
      field
      message
    }
  }
}`

const queryFormAnswerGroup = `
query($id: ID!) {
  formAnswerGroup(id: $id) {
    id
    finished
    created_at
    form_answers {
      id
      answer
      displayed_answer
      custom_module {
        id
        label
        mod_type
      }
    }
  }
}`

const queryFormAnswerGroups = `
query($userId: String) {
  formAnswerGroups(user_id: $userId) {
    id
    custom_module_form {
      id
      name
    }
    created_at
  }
}`

const mutationDeleteFormAnswerGroup = `
mutation deleteFormAnswerGroup($input: deleteFormAnswerGroupInput!) {
  deleteFormAnswerGroup(input: $input) {
    messages {
      field
      message
    }
  }
}`
